package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (app *application) routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(app.notFoundErrorResponse)
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedErrorResponse)

	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", app.healthCheckHandler)

	router.HandlerFunc(http.MethodGet, "/v1/feed", app.getFeedHandler)

	router.HandlerFunc(http.MethodPost, "/v1/blogs", app.requireAuthUser(app.createBlogHandler))
	router.HandlerFunc(http.MethodGet, "/v1/blogs/:id", app.getBlogHandler)
	router.HandlerFunc(http.MethodPatch, "/v1/blogs/:id", app.requireAuthUser(app.updateBlogHandler))
	router.HandlerFunc(http.MethodDelete, "/v1/blogs/:id", app.requireAuthUser(app.deleteBlogHandler))
	router.HandlerFunc(http.MethodPost, "/v1/blogs/:id/like", app.requireAuthUser(app.likeBlogHandler))
	router.HandlerFunc(http.MethodDelete, "/v1/blogs/:id/like", app.requireAuthUser(app.unlikeBlogHandler))
	router.HandlerFunc(http.MethodGet, "/v1/blogs/:id/comments", app.getBlogCommentsHandler)
	router.HandlerFunc(http.MethodPost, "/v1/blogs/:id/comments", app.requireAuthUser(app.createCommentHandler))

	router.HandlerFunc(http.MethodDelete, "/v1/comments/:id", app.requireAuthUser(app.deleteCommentHandler))

	router.HandlerFunc(http.MethodGet, "/v1/profiles/:username", app.getProfileHandler)
	router.HandlerFunc(http.MethodGet, "/v1/users/:id/blogs", app.getUserBlogsHandler)
	router.HandlerFunc(http.MethodGet, "/v1/users/:id/liked", app.getUserLikedBlogsHandler)

	router.HandlerFunc(http.MethodPost, "/v1/contact", app.contactMessageHandler)
	router.HandlerFunc(http.MethodPost, "/v1/newsletter", app.newsletterSignupHandler)

	return app.recoverPanic(app.rateLimit(app.logRequest(app.authenticate(router))))
}
