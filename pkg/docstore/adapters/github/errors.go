package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rbxmod/banlist/pkg/docstore"
)

// APIError is a non-2xx response from the GitHub REST API.
type APIError struct {
	StatusCode       int
	Message          string
	DocumentationURL string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps GitHub status codes onto the docstore sentinels so callers can
// use errors.Is without knowing about this adapter.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return docstore.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return docstore.ErrConflict
	case e.StatusCode == http.StatusUnprocessableEntity && isShaMessage(e.Message):
		// Creating a file that already exists without a sha.
		return docstore.ErrConflict
	}
	return nil
}

func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var wire struct {
		Message          string `json:"message"`
		DocumentationURL string `json:"documentation_url"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		apiErr.Message = wire.Message
		apiErr.DocumentationURL = wire.DocumentationURL
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func isShaMessage(message string) bool {
	return strings.Contains(strings.ToLower(message), "sha")
}
