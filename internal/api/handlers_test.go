package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbxmod/banlist/internal/auth"
	"github.com/rbxmod/banlist/internal/config"
	"github.com/rbxmod/banlist/internal/server"
	"github.com/rbxmod/banlist/pkg/banlist"
	"github.com/rbxmod/banlist/pkg/docstore"
	"github.com/rbxmod/banlist/pkg/docstore/adapters/local"
	"github.com/rbxmod/banlist/pkg/events"
	"github.com/rbxmod/banlist/pkg/ratelimit"
)

const testSecret = "s3cret"

type countingStore struct {
	docstore.Store

	mu     sync.Mutex
	puts   int
	getErr error
}

func (c *countingStore) Get(ctx context.Context) (*docstore.Object, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.Store.Get(ctx)
}

func (c *countingStore) Put(ctx context.Context, content []byte, revision, message string) (string, error) {
	c.mu.Lock()
	c.puts++
	c.mu.Unlock()
	return c.Store.Put(ctx, content, revision, message)
}

func (c *countingStore) Puts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() {}

type testEnv struct {
	handler   http.Handler
	store     *countingStore
	publisher *recordingPublisher
	now       *time.Time
}

func newTestEnv(t *testing.T, limit int) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	adapter, err := local.NewAdapter(&local.Config{Path: "/banned_users.json", Fs: fs}, nil)
	require.NoError(t, err)
	store := &countingStore{Store: adapter}

	syncer, err := banlist.NewSyncer(banlist.SyncerConfig{Store: store})
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter, err := ratelimit.NewMemory(
		ratelimit.Config{Limit: limit, Window: time.Minute},
		ratelimit.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	cfg, err := config.LoadWithLookup("", func(string) (string, bool) { return "", false })
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	srv := server.Server{
		Syncer: syncer,
		Gate:   &auth.Gate{Secret: testSecret, Limiter: limiter},
		Events: publisher,
		Config: cfg,
		Logger: hclog.NewNullLogger(),
	}

	return &testEnv{
		handler:   NewHandler(srv),
		store:     store,
		publisher: publisher,
		now:       &now,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return e.doWithSecret(t, method, path, body, testSecret)
}

func (e *testEnv) doWithSecret(t *testing.T, method, path, body, secret string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:40000"
	if secret != "" {
		req.Header.Set(auth.SecretHeader, secret)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestBanThenCheck(t *testing.T) {
	env := newTestEnv(t, 100)

	w, resp := env.do(t, "POST", "/ban-player", `{"userId":"42","username":"griefer","displayName":"Griefer"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", resp["status"])
	assert.NotEmpty(t, resp["message"])

	w, resp = env.do(t, "POST", "/check-ban", `{"userId":"42"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "42", resp["userId"])
	assert.Equal(t, true, resp["is_banned"])
	assert.Equal(t, map[string]any{"username": "griefer", "displayName": "Griefer"}, resp["user_data"])
}

func TestBanNumericUserID(t *testing.T) {
	env := newTestEnv(t, 100)

	w, _ := env.do(t, "POST", "/ban-player", `{"userId":12345,"username":"num","displayName":"Num"}`)
	require.Equal(t, http.StatusOK, w.Code)

	_, resp := env.do(t, "POST", "/check-ban", `{"userId":" 12345 "}`)
	assert.Equal(t, "12345", resp["userId"])
	assert.Equal(t, true, resp["is_banned"])
}

func TestBanIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 100)

	body := `{"userId":"42","username":"griefer","displayName":"Griefer"}`
	w, _ := env.do(t, "POST", "/ban-player", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, env.store.Puts())

	obj, err := env.store.Get(context.Background())
	require.NoError(t, err)

	w, resp := env.do(t, "POST", "/ban-player", `{"userId":"42","username":"other","displayName":"Other"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, 1, env.store.Puts())

	after, err := env.store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, obj.Revision, after.Revision)

	_, resp = env.do(t, "POST", "/check-ban", `{"userId":"42"}`)
	assert.Equal(t, "griefer", resp["user_data"].(map[string]any)["username"])
}

func TestUnbanMissingIsNoop(t *testing.T) {
	env := newTestEnv(t, 100)

	w, resp := env.do(t, "POST", "/unban-player", `{"userId":"404"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, 0, env.store.Puts())
	assert.Empty(t, env.publisher.events)
}

func TestBanUnbanCheck(t *testing.T) {
	env := newTestEnv(t, 100)

	env.do(t, "POST", "/ban-player", `{"userId":"7","username":"seven","displayName":"Seven"}`)

	w, _ := env.do(t, "POST", "/unban-player", `{"userId":"7"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, env.store.Puts())

	_, resp := env.do(t, "POST", "/check-ban", `{"userId":"7"}`)
	assert.Equal(t, false, resp["is_banned"])
	assert.Contains(t, resp, "user_data")
	assert.Nil(t, resp["user_data"])
}

func TestBanList(t *testing.T) {
	env := newTestEnv(t, 100)

	w, resp := env.do(t, "GET", "/ban-list", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{}, resp["banned_users"])

	for _, id := range []string{"1", "2", "3"} {
		w, _ := env.do(t, "POST", "/ban-player",
			`{"userId":"`+id+`","username":"user`+id+`","displayName":"User `+id+`"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	_, resp = env.do(t, "GET", "/ban-list", "")
	users := resp["banned_users"].(map[string]any)
	assert.Len(t, users, 3)
	assert.Equal(t, map[string]any{"username": "user2", "displayName": "User 2"}, users["2"])
}

func TestValidation(t *testing.T) {
	env := newTestEnv(t, 100)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"ban missing all", "/ban-player", `{}`},
		{"ban empty body", "/ban-player", ``},
		{"ban missing display name", "/ban-player", `{"userId":"1","username":"a"}`},
		{"ban blank username", "/ban-player", `{"userId":"1","username":"   ","displayName":"A"}`},
		{"ban blank user id", "/ban-player", `{"userId":"  ","username":"a","displayName":"A"}`},
		{"ban object user id", "/ban-player", `{"userId":{"id":1},"username":"a","displayName":"A"}`},
		{"unban missing user id", "/unban-player", `{"username":"a"}`},
		{"unban null user id", "/unban-player", `{"userId":null}`},
		{"check missing user id", "/check-ban", `{}`},
		{"malformed json", "/check-ban", `{"userId":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.do(t, "POST", tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "error", resp["status"])
			assert.NotEmpty(t, resp["message"])
		})
	}

	assert.Equal(t, 0, env.store.Puts())
}

func TestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, 100)

	body := `{"userId":"1","username":"` + strings.Repeat("a", maxRequestBodyBytes) + `","displayName":"A"}`
	w, resp := env.do(t, "POST", "/ban-player", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp["message"], "exceeds")
}

func TestUnauthorized(t *testing.T) {
	env := newTestEnv(t, 100)

	for _, secret := range []string{"", "wrong"} {
		w, resp := env.doWithSecret(t, "POST", "/ban-player",
			`{"userId":"1","username":"a","displayName":"A"}`, secret)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "error", resp["status"])

		// Invalid bodies are still unauthorized.
		w, _ = env.doWithSecret(t, "POST", "/check-ban", `not json`, secret)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w, _ = env.doWithSecret(t, "GET", "/ban-list", "", secret)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	assert.Equal(t, 0, env.store.Puts())
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, 10)

	for i := 0; i < 10; i++ {
		w, _ := env.do(t, "GET", "/ban-list", "")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w, resp := env.do(t, "GET", "/ban-list", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "error", resp["status"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	*env.now = env.now.Add(time.Minute)

	w, _ = env.do(t, "GET", "/ban-list", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, 100)

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/"},
		{"GET", "/health"},
		{"POST", "/ban-players"},
		{"GET", "/ban-player"},
		{"POST", "/ban-list"},
		{"DELETE", "/unban-player"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w, resp := env.doWithSecret(t, tt.method, tt.path, "", "")
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "error", resp["status"])
			assert.NotEmpty(t, resp["message"])
		})
	}
}

func TestStoreFailure(t *testing.T) {
	env := newTestEnv(t, 100)
	env.store.getErr = errors.New("github: 503 service unavailable")

	for _, tc := range []struct{ method, path, body string }{
		{"GET", "/ban-list", ""},
		{"POST", "/check-ban", `{"userId":"1"}`},
		{"POST", "/ban-player", `{"userId":"1","username":"a","displayName":"A"}`},
		{"POST", "/unban-player", `{"userId":"1"}`},
	} {
		w, resp := env.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusInternalServerError, w.Code, tc.path)
		assert.Equal(t, "error", resp["status"])
		assert.Equal(t, "Internal Server Error", resp["message"])
		assert.Contains(t, resp["detail"], "503 service unavailable")
	}
}

func TestConflictIsServerError(t *testing.T) {
	env := newTestEnv(t, 100)

	env.do(t, "POST", "/ban-player", `{"userId":"1","username":"one","displayName":"One"}`)

	// Another writer moves the document on between our fetch and store.
	inner := env.store.Store
	env.store.Store = &racingStore{Store: inner}

	w, resp := env.do(t, "POST", "/ban-player", `{"userId":"2","username":"two","displayName":"Two"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, resp["detail"], "conflict")

	env.store.Store = inner
	_, resp = env.do(t, "POST", "/check-ban", `{"userId":"2"}`)
	assert.Equal(t, false, resp["is_banned"])
}

// racingStore commits an unrelated change right before every Put.
type racingStore struct {
	docstore.Store
}

func (r *racingStore) Put(ctx context.Context, content []byte, revision, message string) (string, error) {
	current, err := r.Store.Get(ctx)
	if err != nil {
		return "", err
	}
	changed := bytes.Replace(current.Content, []byte("{\n"), []byte("{\n  \n"), 1)
	if _, err := r.Store.Put(ctx, changed, current.Revision, "concurrent"); err != nil {
		return "", err
	}
	return r.Store.Put(ctx, content, revision, message)
}

func TestEventsPublished(t *testing.T) {
	env := newTestEnv(t, 100)

	env.do(t, "POST", "/ban-player", `{"userId":"5","username":"five","displayName":"Five"}`)
	env.do(t, "POST", "/ban-player", `{"userId":"5","username":"five","displayName":"Five"}`)
	env.do(t, "POST", "/unban-player", `{"userId":"5"}`)
	env.do(t, "POST", "/unban-player", `{"userId":"5"}`)

	require.Len(t, env.publisher.events, 2)
	assert.Equal(t, events.TypePlayerBanned, env.publisher.events[0].Type)
	assert.Equal(t, "five", env.publisher.events[0].Username)
	assert.Equal(t, events.TypePlayerUnbanned, env.publisher.events[1].Type)
	assert.Equal(t, "5", env.publisher.events[1].UserID)
	assert.NotEmpty(t, env.publisher.events[1].RequestID)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t, 100)
	env.publisher.err = errors.New("broker down")

	w, resp := env.do(t, "POST", "/ban-player", `{"userId":"5","username":"five","displayName":"Five"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", resp["status"])
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, 100)

	w, _ := env.do(t, "GET", "/ban-list", "")
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest("GET", "/ban-list", nil)
	req.Header.Set(auth.SecretHeader, testSecret)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))
}

func TestTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(time.Second, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}
