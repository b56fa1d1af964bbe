package github

import (
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultBaseURL is the public GitHub REST API.
const DefaultBaseURL = "https://api.github.com"

// Config configures the GitHub contents adapter.
type Config struct {
	// BaseURL is the REST API root. Defaults to DefaultBaseURL; set it for
	// GitHub Enterprise Server ("https://ghe.example.com/api/v3").
	BaseURL string

	// Token is a personal access token or fine-grained token with contents
	// read/write permission on the repository.
	Token string

	// Owner and Repo name the repository holding the document.
	Owner string
	Repo  string

	// Path is the document path inside the repository.
	Path string

	// Branch to read from and commit to. Empty uses the default branch.
	Branch string

	// CommitterName and CommitterEmail override the commit author. Both must
	// be set for either to take effect.
	CommitterName  string
	CommitterEmail string

	// Timeout bounds each API request (default: 30s).
	Timeout time.Duration

	// HTTPClient is the base transport. The token is layered on top of it.
	HTTPClient *http.Client
}

// Validate checks required configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.Path, validation.Required),
	)
}

// SetDefaults fills unset optional fields.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.Path = strings.Trim(c.Path, "/")
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}
