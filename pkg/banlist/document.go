package banlist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// document is the persisted JSON shape.
type document struct {
	BannedUsers map[string]BanRecord `json:"banned_users"`
}

// storedRecord accepts both the current and the legacy record shape.
type storedRecord struct {
	Username    string          `json:"username"`
	DisplayName string          `json:"displayName"`
	BannedAt    json.RawMessage `json:"banned_at,omitempty"`
}

type storedDocument struct {
	BannedUsers map[string]*storedRecord `json:"banned_users"`
}

// LegacyRecord describes a record that was stored without a displayName or
// with the old banned_at field.
type LegacyRecord struct {
	UserID string

	// FilledDisplayName is set when displayName was missing and the
	// username was used in its place.
	FilledDisplayName bool

	// BannedAt is the parsed legacy timestamp, zero if it could not be parsed.
	BannedAt time.Time

	// RawBannedAt is the timestamp exactly as stored.
	RawBannedAt string
}

// MigrationReport lists the normalizations Decode applied.
type MigrationReport struct {
	// Legacy records had displayName filled from username or lost their
	// banned_at field.
	Legacy []LegacyRecord

	// Rekeyed counts entries whose key was not trimmed.
	Rekeyed int

	// Dropped lists keys that were empty after trimming, collided with an
	// existing canonical key, or held a null or unusable record.
	Dropped []string
}

// Changed reports whether re-encoding would differ from the stored document.
func (m *MigrationReport) Changed() bool {
	return m != nil && (len(m.Legacy) > 0 || m.Rekeyed > 0 || len(m.Dropped) > 0)
}

// Summary is a one-line description suitable for a change message.
func (m *MigrationReport) Summary() string {
	return fmt.Sprintf("normalized %d legacy records, rekeyed %d, dropped %d",
		len(m.Legacy), m.Rekeyed, len(m.Dropped))
}

// Decode parses a stored document. Empty content decodes to an empty
// registry.
func Decode(content []byte) (*Registry, *MigrationReport, error) {
	reg := NewRegistry()
	report := &MigrationReport{}

	if len(bytes.TrimSpace(content)) == 0 {
		return reg, report, nil
	}

	var stored storedDocument
	if err := json.Unmarshal(content, &stored); err != nil {
		return nil, nil, fmt.Errorf("invalid ban list document: %w", err)
	}

	// Canonical keys first so they win collisions with untrimmed variants.
	keys := make([]string, 0, len(stored.BannedUsers))
	for key := range stored.BannedUsers {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := NormalizeKey(keys[i]) == keys[i], NormalizeKey(keys[j]) == keys[j]
		if ci != cj {
			return ci
		}
		return keys[i] < keys[j]
	})

	for _, key := range keys {
		entry := stored.BannedUsers[key]
		userID := NormalizeKey(key)

		if userID == "" {
			report.Dropped = append(report.Dropped, key)
			continue
		}
		if _, exists := reg.Lookup(userID); exists {
			report.Dropped = append(report.Dropped, key)
			continue
		}
		if entry == nil {
			report.Dropped = append(report.Dropped, key)
			continue
		}

		record := BanRecord{Username: entry.Username, DisplayName: entry.DisplayName}
		filled := strings.TrimSpace(record.DisplayName) == ""
		if filled {
			record.DisplayName = record.Username
		}
		if record.Validate() != nil {
			report.Dropped = append(report.Dropped, key)
			continue
		}
		if filled || len(entry.BannedAt) > 0 {
			legacy := parseLegacy(userID, entry.BannedAt)
			legacy.FilledDisplayName = filled
			report.Legacy = append(report.Legacy, legacy)
		}
		if userID != key {
			report.Rekeyed++
		}

		reg.Insert(userID, record)
	}

	return reg, report, nil
}

// Encode serializes the registry with two-space indentation and a trailing
// newline. Keys are sorted, so unchanged registries encode identically.
func Encode(reg *Registry) ([]byte, error) {
	out, err := json.MarshalIndent(document{BannedUsers: reg.List()}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode ban list: %w", err)
	}
	return append(out, '\n'), nil
}

func parseLegacy(userID string, raw json.RawMessage) LegacyRecord {
	legacy := LegacyRecord{UserID: userID}
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return legacy
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		// Numeric epoch or something else; use the literal.
		text = string(bytes.TrimSpace(raw))
	}
	legacy.RawBannedAt = text

	if t, err := dateparse.ParseAny(strings.TrimSpace(text)); err == nil {
		legacy.BannedAt = t.UTC()
	}
	return legacy
}
