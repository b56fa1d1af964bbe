package banlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrInvalidUserID is returned for user IDs that are empty after trimming or
// are not a JSON string or number.
var ErrInvalidUserID = errors.New("invalid user ID")

// BanRecord is one banned player.
type BanRecord struct {
	Username    string `json:"username" yaml:"username"`
	DisplayName string `json:"displayName" yaml:"displayName"`
}

// Validate requires both names to be non-blank.
func (r BanRecord) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.By(notBlank)),
		validation.Field(&r.DisplayName, validation.Required, validation.By(notBlank)),
	)
}

func notBlank(value any) error {
	if s, _ := value.(string); strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// NormalizeUserID converts a raw JSON user ID (string or number) into its
// canonical registry key.
func NormalizeUserID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: missing", ErrInvalidUserID)
	}

	var id string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidUserID, err)
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidUserID, err)
		}
		id = n.String()
	default:
		return "", fmt.Errorf("%w: must be a string or number", ErrInvalidUserID)
	}

	id = NormalizeKey(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	return id, nil
}

// NormalizeKey trims a user ID already in string form.
func NormalizeKey(id string) string {
	return strings.TrimSpace(id)
}
