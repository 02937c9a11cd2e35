package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metapresshq/metapress/internal/common"
)

func TestRecoverPanic(t *testing.T) {
	app, _ := newTestApplication(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something went wrong")
	})

	middleware := app.recoverPanic(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()

	middleware.ServeHTTP(res, req)

	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Equal(t, "close", res.Header().Get("Connection"))
}

func TestAuthenticate(t *testing.T) {
	app, db := newTestApplication(t)

	session, token := seedSession(t, app, db, "authuser", common.RoleUser)

	var seen common.Session
	handler := app.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = app.getSessionContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	testCases := []struct {
		name       string
		authHeader string
		wantStatus int
		wantUserID int
	}{
		{
			name:       "no header yields the anonymous session",
			authHeader: "",
			wantStatus: http.StatusOK,
			wantUserID: 0,
		},
		{
			name:       "malformed header",
			authHeader: "Bearer",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown token",
			authHeader: "Bearer does-not-exist",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid token",
			authHeader: "Bearer " + token,
			wantStatus: http.StatusOK,
			wantUserID: session.UserID,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			seen = common.AnonymousSession

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			res := httptest.NewRecorder()

			handler.ServeHTTP(res, req)

			require.Equal(t, tc.wantStatus, res.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, tc.wantUserID, seen.UserID)
			}
		})
	}
}

func TestRequireAuthUser(t *testing.T) {
	app, db := newTestApplication(t)

	_, token := seedSession(t, app, db, "authuser", common.RoleUser)

	handler := app.authenticate(app.requireAuthUser(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestRateLimit(t *testing.T) {
	app, _ := newTestApplication(t)

	handler := app.rateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var limited bool
	for i := 0; i < 40; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		res := httptest.NewRecorder()

		handler.ServeHTTP(res, req)

		if res.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}

	assert.True(t, limited, "burst above the limit should be rejected")

	// a different client is unaffected
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestExtractTokenFromHeader(t *testing.T) {
	app := &application{}

	assert.Equal(t, "abc", app.extractTokenFromHeader("Bearer abc"))
	assert.Equal(t, "", app.extractTokenFromHeader("Basic abc"))
	assert.Equal(t, "", app.extractTokenFromHeader("Bearer"))
	assert.Equal(t, "", app.extractTokenFromHeader(""))
}
