package main

import (
	"context"
	"net/http"

	"github.com/metapresshq/metapress/internal/common"
)

type contextKey string

const sessionContextKey = contextKey("session")

func (app *application) createSessionContext(r *http.Request, session common.Session) *http.Request {
	ctx := context.WithValue(r.Context(), sessionContextKey, session)
	return r.WithContext(ctx)
}

func (app *application) getSessionContext(r *http.Request) common.Session {
	session, ok := r.Context().Value(sessionContextKey).(common.Session)
	if !ok {
		return common.AnonymousSession
	}
	return session
}
