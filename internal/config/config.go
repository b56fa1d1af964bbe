// Package config loads the server configuration from an optional HCL file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Store backends.
const (
	BackendGitHub   = "github"
	BackendS3       = "s3"
	BackendLocal    = "local"
	BackendDatabase = "database"
)

// Rate limit backends.
const (
	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

const (
	DefaultAddr            = ":8000"
	DefaultFilePath        = "banned_users.json"
	DefaultRequestTimeout  = "15s"
	DefaultShutdownTimeout = "10s"
	DefaultRateLimit       = 10
	DefaultRateLimitWindow = "60s"
	DefaultKafkaTopic      = "banlist-events"
)

// Config is the root configuration.
type Config struct {
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `hcl:"log_level,optional"`

	// Secret is the shared secret callers send in X-Roblox-Secret.
	Secret string `hcl:"secret,optional"`

	Server    *Server    `hcl:"server,block"`
	RateLimit *RateLimit `hcl:"rate_limit,block"`
	Redis     *Redis     `hcl:"redis,block"`
	Store     *Store     `hcl:"store,block"`
	GitHub    *GitHub    `hcl:"github,block"`
	S3        *S3        `hcl:"s3,block"`
	Local     *Local     `hcl:"local,block"`
	Database  *Database  `hcl:"database,block"`
	Events    *Events    `hcl:"events,block"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string `hcl:"addr,optional"`
	RequestTimeout  string `hcl:"request_timeout,optional"`
	ShutdownTimeout string `hcl:"shutdown_timeout,optional"`

	// TrustProxyHeaders rate limits by X-Forwarded-For. Only enable it
	// behind a proxy that sets the header.
	TrustProxyHeaders bool `hcl:"trust_proxy_headers,optional"`

	// SerializeWrites runs ban list updates one at a time in this process.
	SerializeWrites bool `hcl:"serialize_writes,optional"`
}

// RateLimit configures the per-address fixed window.
type RateLimit struct {
	Backend string `hcl:"backend,optional"`
	Limit   int    `hcl:"limit,optional"`
	Window  string `hcl:"window,optional"`
}

// Redis configures the shared rate limit store.
type Redis struct {
	Addr     string `hcl:"addr,optional"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`
	PoolSize int    `hcl:"pool_size,optional"`
}

// Store selects where the ban list document lives.
type Store struct {
	Backend string `hcl:"backend,optional"`

	// Path is the document path inside the backend: repository path,
	// object key, file path or row key.
	Path string `hcl:"path,optional"`
}

// GitHub configures the repository contents backend.
type GitHub struct {
	Token          string `hcl:"token,optional"`
	Owner          string `hcl:"owner,optional"`
	Repo           string `hcl:"repo,optional"`
	Branch         string `hcl:"branch,optional"`
	APIURL         string `hcl:"api_url,optional"`
	CommitterName  string `hcl:"committer_name,optional"`
	CommitterEmail string `hcl:"committer_email,optional"`
}

// S3 configures the object storage backend.
type S3 struct {
	Endpoint  string `hcl:"endpoint,optional"`
	Region    string `hcl:"region,optional"`
	Bucket    string `hcl:"bucket,optional"`
	Prefix    string `hcl:"prefix,optional"`
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`
}

// Local configures the filesystem backend.
type Local struct {
	History bool `hcl:"history,optional"`
}

// Database configures the SQL backend.
type Database struct {
	Driver   string `hcl:"driver,optional"`
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`
	Path     string `hcl:"path,optional"`
}

// Events configures ban event publishing. No brokers disables it.
type Events struct {
	KafkaBrokers []string `hcl:"kafka_brokers,optional"`
	KafkaTopic   string   `hcl:"kafka_topic,optional"`
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads the HCL file at path, if any, applies environment overrides
// from the process environment and fills defaults. It does not validate.
func Load(path string) (*Config, error) {
	return LoadWithLookup(path, os.LookupEnv)
}

// LoadWithLookup is Load with a custom environment.
func LoadWithLookup(path string, lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file: %w", err)
		}
	}

	cfg.ApplyEnv(lookup)
	cfg.SetDefaults()
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	c.ensureBlocks()

	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.Secret, "ROBLOX_SECRET")

	set(&c.Server.Addr, "BANLIST_ADDR")
	if c.Server.Addr == "" {
		if port, ok := lookup("PORT"); ok && port != "" {
			c.Server.Addr = ":" + port
		}
	}

	set(&c.Store.Backend, "STORE_BACKEND")
	set(&c.Store.Path, "FILE_PATH")
	if v, ok := lookup("LOCAL_HISTORY"); ok {
		if history, err := strconv.ParseBool(v); err == nil {
			c.Local.History = history
		}
	}

	set(&c.GitHub.Token, "GITHUB_TOKEN")
	set(&c.GitHub.Owner, "GITHUB_OWNER")
	set(&c.GitHub.Repo, "GITHUB_REPO")
	set(&c.GitHub.Branch, "GITHUB_BRANCH")
	set(&c.GitHub.APIURL, "GITHUB_API_URL")

	set(&c.Redis.Addr, "REDIS_ADDR")

	if brokers, ok := lookup("KAFKA_BROKERS"); ok && brokers != "" {
		c.Events.KafkaBrokers = splitList(brokers)
	}
	set(&c.Events.KafkaTopic, "KAFKA_TOPIC")
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	c.ensureBlocks()

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = DefaultRequestTimeout
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = DefaultRateLimit
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = DefaultRateLimitWindow
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = LimiterMemory
		if c.Redis.Addr != "" {
			c.RateLimit.Backend = LimiterRedis
		}
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendGitHub
	}
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.Store.Path == "" {
		c.Store.Path = DefaultFilePath
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}

	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		c.Events.KafkaTopic = DefaultKafkaTopic
	}
}

func (c *Config) ensureBlocks() {
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.RateLimit == nil {
		c.RateLimit = &RateLimit{}
	}
	if c.Redis == nil {
		c.Redis = &Redis{}
	}
	if c.Store == nil {
		c.Store = &Store{}
	}
	if c.GitHub == nil {
		c.GitHub = &GitHub{}
	}
	if c.S3 == nil {
		c.S3 = &S3{}
	}
	if c.Local == nil {
		c.Local = &Local{}
	}
	if c.Database == nil {
		c.Database = &Database{}
	}
	if c.Events == nil {
		c.Events = &Events{}
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	c.ensureBlocks()

	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		add("log_level %q is not a valid level", c.LogLevel)
	}
	if c.Secret == "" {
		add("secret is required (ROBLOX_SECRET)")
	}

	if _, err := parseDuration("server.request_timeout", c.Server.RequestTimeout); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := parseDuration("server.shutdown_timeout", c.Server.ShutdownTimeout); err != nil {
		result = multierror.Append(result, err)
	}

	if c.RateLimit.Limit <= 0 {
		add("rate_limit.limit must be positive")
	}
	if _, err := parseDuration("rate_limit.window", c.RateLimit.Window); err != nil {
		result = multierror.Append(result, err)
	}
	switch c.RateLimit.Backend {
	case LimiterMemory:
	case LimiterRedis:
		if c.Redis.Addr == "" {
			add("redis.addr is required for the redis rate limiter (REDIS_ADDR)")
		}
	default:
		add("rate_limit.backend %q is not supported", c.RateLimit.Backend)
	}

	result = c.validateStore(result)

	return result.ErrorOrNil()
}

// ValidateStore checks only what is needed to open the document store.
func (c *Config) ValidateStore() error {
	c.ensureBlocks()
	return c.validateStore(nil).ErrorOrNil()
}

func (c *Config) validateStore(result *multierror.Error) *multierror.Error {
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if strings.Trim(c.Store.Path, "/") == "" {
		add("store.path is required (FILE_PATH)")
	}
	switch c.Store.Backend {
	case BackendGitHub:
		if c.GitHub.Token == "" {
			add("github.token is required (GITHUB_TOKEN)")
		}
		if c.GitHub.Owner == "" {
			add("github.owner is required (GITHUB_OWNER)")
		}
		if c.GitHub.Repo == "" {
			add("github.repo is required (GITHUB_REPO)")
		}
	case BackendS3:
		if c.S3.Region == "" {
			add("s3.region is required")
		}
		if c.S3.Bucket == "" {
			add("s3.bucket is required")
		}
	case BackendLocal:
	case BackendDatabase:
		switch c.Database.Driver {
		case "postgres":
			if c.Database.Host == "" {
				add("database.host is required for postgres")
			}
			if c.Database.DBName == "" {
				add("database.dbname is required for postgres")
			}
		case "sqlite":
			if c.Database.Path == "" {
				add("database.path is required for sqlite")
			}
		default:
			add("database.driver %q is not supported", c.Database.Driver)
		}
	default:
		add("store.backend %q is not supported", c.Store.Backend)
	}

	return result
}

// RequestTimeout returns the per-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := parseDuration("", c.Server.RequestTimeout)
	return d
}

// ShutdownTimeout returns how long in-flight requests get to finish.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration("", c.Server.ShutdownTimeout)
	return d
}

// RateLimitWindow returns the fixed window length.
func (c *Config) RateLimitWindow() time.Duration {
	d, _ := parseDuration("", c.RateLimit.Window)
	return d
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive", field)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ErrorList flattens a Validate error for display.
func ErrorList(err error) []string {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		out = append(out, e.Error())
	}
	return out
}
