package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metapresshq/metapress/internal/blogservice"
	"github.com/metapresshq/metapress/internal/commentservice"
	"github.com/metapresshq/metapress/internal/common"
	"github.com/metapresshq/metapress/internal/feedservice"
	"github.com/metapresshq/metapress/internal/userservice"
)

type testServer struct {
	*httptest.Server
}

type noopAssetStore struct{}

func (noopAssetStore) DeleteMany(ctx context.Context, publicIDs []string) error { return nil }

func newTestApplication(t *testing.T) (*application, *sql.DB) {
	db := common.TestDB("file://../../migrations", t)
	cache := common.TestCache(t)

	codec, err := common.NewIDCodec("test-salt")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	blogService := blogservice.NewBlogService(db, cache, noopAssetStore{}, codec, logger)

	app := &application{
		config:         &Config{Environment: "test"},
		logger:         logger,
		cache:          cache,
		codec:          codec,
		blogService:    blogService,
		commentService: commentservice.NewCommentService(db, cache, codec, logger),
		userService:    userservice.NewUserService(db, cache, codec, blogService, logger),
		feedService:    feedservice.NewFeedService(blogService, cache, logger),
	}

	return app, db
}

func newTestServer(t *testing.T, h http.Handler) *testServer {
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &testServer{ts}
}

// seedSession creates a user row and a session record the authenticate
// middleware can resolve, returning the bearer token.
func seedSession(t *testing.T, app *application, db *sql.DB, username, role string) (common.Session, string) {
	var id int
	err := db.QueryRow(`
		INSERT INTO users (name, username, email, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, "Test User", username, username+"@example.com", role).Scan(&id)
	require.NoError(t, err)

	session := common.Session{
		UserID:   id,
		Name:     "Test User",
		Username: username,
		Role:     role,
	}

	data, err := json.Marshal(session)
	require.NoError(t, err)

	token := "token-" + username
	err = app.cache.Set(context.Background(), common.KeySession(token), string(data), common.UserTTL)
	require.NoError(t, err)

	return session, token
}

func readResponse(t *testing.T, res *http.Response) (int, envelope) {
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))

	return res.StatusCode, env
}

func (ts *testServer) request(t *testing.T, method, path string, payload any, token string) (int, envelope) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	res, err := ts.Client().Do(req)
	require.NoError(t, err)

	return readResponse(t, res)
}

func (ts *testServer) get(t *testing.T, path, token string) (int, envelope) {
	return ts.request(t, http.MethodGet, path, nil, token)
}

func (ts *testServer) post(t *testing.T, path string, payload any, token string) (int, envelope) {
	return ts.request(t, http.MethodPost, path, payload, token)
}

func (ts *testServer) patch(t *testing.T, path string, payload any, token string) (int, envelope) {
	return ts.request(t, http.MethodPatch, path, payload, token)
}

func (ts *testServer) delete(t *testing.T, path, token string) (int, envelope) {
	return ts.request(t, http.MethodDelete, path, nil, token)
}
