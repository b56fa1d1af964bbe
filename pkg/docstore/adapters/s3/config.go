package s3

import (
	"fmt"
	"path"
	"strings"
)

// Config contains configuration for the S3 document adapter.
type Config struct {
	// S3 connection settings
	Endpoint  string // S3 endpoint URL; empty uses AWS (set for MinIO etc.)
	Region    string // AWS region (e.g., "us-west-2")
	Bucket    string // Bucket name
	Prefix    string // Optional key prefix (e.g., "roblox/")
	Key       string // Document key below Prefix
	AccessKey string // Access key ID; empty uses the default credential chain
	SecretKey string // Secret access key

	// TLS/timeout settings
	InsecureSkipVerify    bool // Skip TLS verification (testing only)
	RequestTimeoutSeconds int  // Per-request timeout (default: 30)
}

// Validate validates the S3 configuration.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if strings.Trim(c.Key, "/") == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}

// SetDefaults sets default values for optional fields.
func (c *Config) SetDefaults() {
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 30
	}
}

// objectKey joins Prefix and Key.
func (c *Config) objectKey() string {
	key := strings.Trim(c.Key, "/")
	if c.Prefix != "" {
		key = path.Join(strings.Trim(c.Prefix, "/"), key)
	}
	return key
}
