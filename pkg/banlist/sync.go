package banlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/rbxmod/banlist/pkg/docstore"
)

// CommitPrefix marks change messages written by this service.
const CommitPrefix = "[BOT]"

// Handle is a fetched registry and the revision it was read from. Revision
// is empty when the document does not exist yet.
type Handle struct {
	Registry  *Registry
	Revision  string
	Migration *MigrationReport
}

// Mutation changes reg in place and returns a change message. An empty
// message means nothing changed and nothing is written.
type Mutation func(reg *Registry) (message string, err error)

// UpdateResult describes a completed Update.
type UpdateResult struct {
	// Changed is true if a write happened.
	Changed bool

	// Revision is the document revision after the update.
	Revision string

	// Message is the change message that was written.
	Message string

	// Registry is the registry as it is now stored.
	Registry *Registry
}

// Outcome is the result of Ban or Unban.
type Outcome struct {
	Changed  bool
	Revision string

	// Record is the new or already existing record for Ban, and the removed
	// record for Unban (nil when the user was not banned).
	Record *BanRecord
}

// SyncerConfig configures a Syncer.
type SyncerConfig struct {
	Store  docstore.Store
	Logger hclog.Logger

	// SerializeWrites runs Updates one at a time within this process. It
	// narrows, but does not remove, the window for revision conflicts.
	SerializeWrites bool
}

// Syncer runs the fetch, mutate, store protocol against a Store.
type Syncer struct {
	store   docstore.Store
	logger  hclog.Logger
	writeMu *sync.Mutex
}

// NewSyncer creates a Syncer.
func NewSyncer(cfg SyncerConfig) (*Syncer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	s := &Syncer{
		store:  cfg.Store,
		logger: cfg.Logger.Named("sync"),
	}
	if cfg.SerializeWrites {
		s.writeMu = &sync.Mutex{}
	}
	return s, nil
}

// StoreName returns the name of the underlying store.
func (s *Syncer) StoreName() string {
	return s.store.Name()
}

// Fetch reads the current registry. A missing document is an empty
// registry with an empty revision.
func (s *Syncer) Fetch(ctx context.Context) (*Handle, error) {
	obj, err := s.store.Get(ctx)
	if docstore.IsNotFound(err) {
		s.logger.Debug("ban list document not found, starting empty")
		return &Handle{Registry: NewRegistry(), Migration: &MigrationReport{}}, nil
	}
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	reg, report, err := Decode(obj.Content)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if report.Changed() {
		s.logger.Info("normalized stored ban list on read",
			"revision", obj.Revision,
			"legacy", len(report.Legacy),
			"rekeyed", report.Rekeyed,
			"dropped", len(report.Dropped),
		)
	}

	return &Handle{Registry: reg, Revision: obj.Revision, Migration: report}, nil
}

// Store writes reg as the successor of revision.
func (s *Syncer) Store(ctx context.Context, reg *Registry, revision, message string) (string, error) {
	content, err := Encode(reg)
	if err != nil {
		return "", &StoreError{Err: err}
	}

	newRevision, err := s.store.Put(ctx, content, revision, message)
	if err != nil {
		return "", &StoreError{Err: err}
	}
	return newRevision, nil
}

// Update fetches the registry, applies m and stores the result if m
// reported a change. Conflicts are returned to the caller, not retried.
func (s *Syncer) Update(ctx context.Context, m Mutation) (*UpdateResult, error) {
	if s.writeMu != nil {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	handle, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	message, err := m(handle.Registry)
	if err != nil {
		return nil, err
	}
	if message == "" {
		return &UpdateResult{Revision: handle.Revision, Registry: handle.Registry}, nil
	}

	newRevision, err := s.Store(ctx, handle.Registry, handle.Revision, message)
	if err != nil {
		var storeErr *StoreError
		if errors.As(err, &storeErr) && storeErr.Conflict() {
			s.logger.Warn("ban list changed concurrently, write rejected",
				"revision", handle.Revision,
				"message", message,
			)
		}
		return nil, err
	}

	s.logger.Debug("stored ban list", "previous", handle.Revision, "revision", newRevision)

	return &UpdateResult{
		Changed:  true,
		Revision: newRevision,
		Message:  message,
		Registry: handle.Registry,
	}, nil
}

// Ban bans userID unless they are already banned. An existing ban is left
// untouched, even if the names differ.
func (s *Syncer) Ban(ctx context.Context, userID string, record BanRecord) (*Outcome, error) {
	if userID = NormalizeKey(userID); userID == "" {
		return nil, &ValidationError{Err: ErrInvalidUserID}
	}
	if err := record.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	current := record
	result, err := s.Update(ctx, func(reg *Registry) (string, error) {
		if existing, ok := reg.Lookup(userID); ok {
			current = existing
			return "", nil
		}
		reg.Insert(userID, record)
		return fmt.Sprintf("%s Ban %s (%s)", CommitPrefix, record.Username, record.DisplayName), nil
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Changed: result.Changed, Revision: result.Revision, Record: &current}, nil
}

// Unban removes userID if present.
func (s *Syncer) Unban(ctx context.Context, userID string) (*Outcome, error) {
	if userID = NormalizeKey(userID); userID == "" {
		return nil, &ValidationError{Err: ErrInvalidUserID}
	}

	var removed *BanRecord
	result, err := s.Update(ctx, func(reg *Registry) (string, error) {
		record, ok := reg.Remove(userID)
		if !ok {
			return "", nil
		}
		removed = &record
		return fmt.Sprintf("%s Unban %s", CommitPrefix, record.Username), nil
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Changed: result.Changed, Revision: result.Revision, Record: removed}, nil
}
