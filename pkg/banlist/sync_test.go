package banlist

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbxmod/banlist/pkg/docstore"
	"github.com/rbxmod/banlist/pkg/docstore/adapters/local"
)

// countingStore records Puts made through it.
type countingStore struct {
	docstore.Store

	mu       sync.Mutex
	puts     int
	messages []string
	getErr   error
}

func (c *countingStore) Get(ctx context.Context) (*docstore.Object, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.Store.Get(ctx)
}

func (c *countingStore) Put(ctx context.Context, content []byte, revision, message string) (string, error) {
	rev, err := c.Store.Put(ctx, content, revision, message)
	if err == nil {
		c.mu.Lock()
		c.puts++
		c.messages = append(c.messages, message)
		c.mu.Unlock()
	}
	return rev, err
}

func newTestSyncer(t *testing.T) (*Syncer, *countingStore) {
	t.Helper()

	store, err := local.NewAdapter(&local.Config{Path: "/banned_users.json", Fs: afero.NewMemMapFs()}, nil)
	require.NoError(t, err)

	counting := &countingStore{Store: store}
	syncer, err := NewSyncer(SyncerConfig{Store: counting})
	require.NoError(t, err)
	return syncer, counting
}

func TestNewSyncer_RequiresStore(t *testing.T) {
	_, err := NewSyncer(SyncerConfig{})
	assert.Error(t, err)
}

func TestSyncer_FetchMissingDocument(t *testing.T) {
	syncer, _ := newTestSyncer(t)

	handle, err := syncer.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, handle.Registry.Len())
	assert.Empty(t, handle.Revision)
}

func TestSyncer_FetchFailure(t *testing.T) {
	syncer, store := newTestSyncer(t)
	store.getErr = errors.New("connection reset")

	_, err := syncer.Fetch(context.Background())
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSyncer_BanIsIdempotent(t *testing.T) {
	syncer, store := newTestSyncer(t)
	ctx := context.Background()

	outcome, err := syncer.Ban(ctx, "42", BanRecord{Username: "griefer", DisplayName: "Griefer"})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.Equal(t, 1, store.puts)
	assert.Equal(t, []string{"[BOT] Ban griefer (Griefer)"}, store.messages)

	before, err := syncer.Fetch(ctx)
	require.NoError(t, err)

	outcome, err = syncer.Ban(ctx, "42", BanRecord{Username: "renamed", DisplayName: "Renamed"})
	require.NoError(t, err)
	assert.False(t, outcome.Changed)
	assert.Equal(t, "griefer", outcome.Record.Username)
	assert.Equal(t, before.Revision, outcome.Revision)
	assert.Equal(t, 1, store.puts)

	after, err := syncer.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Equal(t, before.Registry.List(), after.Registry.List())
}

func TestSyncer_UnbanMissingIsNoop(t *testing.T) {
	syncer, store := newTestSyncer(t)

	outcome, err := syncer.Unban(context.Background(), "404")
	require.NoError(t, err)
	assert.False(t, outcome.Changed)
	assert.Nil(t, outcome.Record)
	assert.Equal(t, 0, store.puts)
}

func TestSyncer_BanThenUnban(t *testing.T) {
	syncer, store := newTestSyncer(t)
	ctx := context.Background()

	_, err := syncer.Ban(ctx, "7", BanRecord{Username: "seven", DisplayName: "Seven"})
	require.NoError(t, err)

	outcome, err := syncer.Unban(ctx, "7")
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, "seven", outcome.Record.Username)
	assert.Equal(t, "[BOT] Unban seven", store.messages[1])

	handle, err := syncer.Fetch(ctx)
	require.NoError(t, err)
	_, ok := handle.Registry.Lookup("7")
	assert.False(t, ok)
}

func TestSyncer_StaleRevisionFails(t *testing.T) {
	syncer, store := newTestSyncer(t)
	ctx := context.Background()

	_, err := syncer.Ban(ctx, "1", BanRecord{Username: "one", DisplayName: "One"})
	require.NoError(t, err)

	// Two requests read the same revision.
	first, err := syncer.Fetch(ctx)
	require.NoError(t, err)
	second, err := syncer.Fetch(ctx)
	require.NoError(t, err)

	first.Registry.Insert("2", BanRecord{Username: "two", DisplayName: "Two"})
	_, err = syncer.Store(ctx, first.Registry, first.Revision, "first")
	require.NoError(t, err)

	second.Registry.Insert("3", BanRecord{Username: "three", DisplayName: "Three"})
	_, err = syncer.Store(ctx, second.Registry, second.Revision, "second")
	require.Error(t, err)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.True(t, storeErr.Conflict())
	assert.Equal(t, 2, store.puts)

	// Nothing was merged.
	current, err := syncer.Fetch(ctx)
	require.NoError(t, err)
	_, ok := current.Registry.Lookup("2")
	assert.True(t, ok)
	_, ok = current.Registry.Lookup("3")
	assert.False(t, ok)
}

func TestSyncer_UpdateConflictIsNotRetried(t *testing.T) {
	syncer, store := newTestSyncer(t)
	ctx := context.Background()

	_, err := syncer.Ban(ctx, "1", BanRecord{Username: "one", DisplayName: "One"})
	require.NoError(t, err)

	attempts := 0
	_, err = syncer.Update(ctx, func(reg *Registry) (string, error) {
		attempts++
		// A concurrent writer lands between our fetch and our store.
		other, err := syncer.Fetch(ctx)
		require.NoError(t, err)
		other.Registry.Insert("9", BanRecord{Username: "nine", DisplayName: "Nine"})
		_, err = syncer.Store(ctx, other.Registry, other.Revision, "concurrent")
		require.NoError(t, err)

		reg.Insert("2", BanRecord{Username: "two", DisplayName: "Two"})
		return "ours", nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, []string{"[BOT] Ban one (One)", "concurrent"}, store.messages)
}

func TestSyncer_MutationError(t *testing.T) {
	syncer, store := newTestSyncer(t)
	boom := errors.New("boom")

	_, err := syncer.Update(context.Background(), func(reg *Registry) (string, error) {
		reg.Insert("1", BanRecord{Username: "x"})
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.puts)
}

func TestSyncer_SerializeWrites(t *testing.T) {
	store, err := local.NewAdapter(&local.Config{Path: "/banned_users.json", Fs: afero.NewMemMapFs()}, nil)
	require.NoError(t, err)
	syncer, err := NewSyncer(SyncerConfig{Store: store, SerializeWrites: true})
	require.NoError(t, err)

	ctx := context.Background()
	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := syncer.Ban(ctx, id, BanRecord{Username: "user" + id, DisplayName: "User " + id})
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	handle, err := syncer.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(ids), handle.Registry.Len())
}

func TestSyncer_BanValidation(t *testing.T) {
	syncer, store := newTestSyncer(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
		record BanRecord
	}{
		{"blank id", "  ", BanRecord{Username: "a", DisplayName: "A"}},
		{"blank username", "1", BanRecord{Username: " ", DisplayName: "A"}},
		{"missing display name", "1", BanRecord{Username: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := syncer.Ban(ctx, tt.userID, tt.record)
			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}

	_, err := syncer.Unban(ctx, "")
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)

	assert.Equal(t, 0, store.puts)
}
