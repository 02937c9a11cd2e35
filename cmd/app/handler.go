package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/metapresshq/metapress/internal/blogservice"
	"github.com/metapresshq/metapress/internal/commentservice"
	"github.com/metapresshq/metapress/internal/common"
	"github.com/metapresshq/metapress/internal/mailservice"
	"github.com/metapresshq/metapress/internal/userservice"
)

const defaultPageSize = 10

// Payload types shadow the numeric ids of the service entities with their
// opaque encoded form. Raw database ids never leave the API boundary.
type blogPayload struct {
	blogservice.Blog
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

type blogViewPayload struct {
	blogPayload
	Likes   int64 `json:"likes"`
	IsLiked bool  `json:"is_liked"`
}

type commentPayload struct {
	commentservice.Comment
	ID     string `json:"id"`
	BlogID string `json:"blog_id"`
	UserID string `json:"user_id"`
}

type profilePayload struct {
	userservice.Profile
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

func (app *application) newBlogPayload(b blogservice.Blog) blogPayload {
	return blogPayload{Blog: b, ID: app.codec.Encode(b.ID), UserID: app.codec.Encode(b.UserID)}
}

func (app *application) newBlogViewPayload(v blogservice.BlogView) blogViewPayload {
	return blogViewPayload{blogPayload: app.newBlogPayload(v.Blog), Likes: v.Likes, IsLiked: v.IsLiked}
}

func (app *application) newBlogListPayload(blogs []blogservice.Blog) []blogPayload {
	out := make([]blogPayload, 0, len(blogs))
	for _, b := range blogs {
		out = append(out, app.newBlogPayload(b))
	}
	return out
}

func (app *application) newCommentPayload(c commentservice.Comment) commentPayload {
	return commentPayload{
		Comment: c,
		ID:      app.codec.Encode(c.ID),
		BlogID:  app.codec.Encode(c.BlogID),
		UserID:  app.codec.Encode(c.UserID),
	}
}

func (app *application) serviceErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var ve common.ValidationError

	switch {
	case errors.As(err, &ve):
		app.failedValidationErrorResponse(w, r, ve.Errors)
	case errors.Is(err, common.ErrUnauthorized):
		app.unAuthorizedErrorResponse(w, r)
	case errors.Is(err, blogservice.ErrRecordNotFound), errors.Is(err, commentservice.ErrRecordNotFound):
		app.notFoundErrorResponse(w, r)
	default:
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) getBlogHandler(w http.ResponseWriter, r *http.Request) {
	id := app.readPathParam(r, "id")

	view, err := app.blogService.Find(r.Context(), app.getSessionContext(r), id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	if view == nil {
		app.notFoundErrorResponse(w, r)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"blog": app.newBlogViewPayload(*view)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) createBlogHandler(w http.ResponseWriter, r *http.Request) {
	var input blogservice.CreateBlogRequest

	err := app.parseJSON(w, r, &input)
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	view, err := app.blogService.Create(r.Context(), app.getSessionContext(r), &input)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusCreated, envelope{"blog": app.newBlogViewPayload(*view)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) updateBlogHandler(w http.ResponseWriter, r *http.Request) {
	var input blogservice.UpdateBlogRequest

	err := app.parseJSON(w, r, &input)
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}
	input.ID = app.readPathParam(r, "id")

	view, err := app.blogService.Update(r.Context(), app.getSessionContext(r), &input)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"blog": app.newBlogViewPayload(*view)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) deleteBlogHandler(w http.ResponseWriter, r *http.Request) {
	id := app.readPathParam(r, "id")

	err := app.blogService.Delete(r.Context(), app.getSessionContext(r), id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "blog deleted"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) likeBlogHandler(w http.ResponseWriter, r *http.Request) {
	id := app.readPathParam(r, "id")

	applied, err := app.blogService.Like(r.Context(), app.getSessionContext(r), id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"liked": applied}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) unlikeBlogHandler(w http.ResponseWriter, r *http.Request) {
	id := app.readPathParam(r, "id")

	applied, err := app.blogService.Unlike(r.Context(), app.getSessionContext(r), id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"unliked": applied}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) getBlogCommentsHandler(w http.ResponseWriter, r *http.Request) {
	id := app.readPathParam(r, "id")

	pageSize, cursor, err := app.readPageParams(r, defaultPageSize)
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	comments, next, err := app.commentService.FindByBlogID(r.Context(), id, pageSize, cursor)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	payload := make([]commentPayload, 0, len(comments))
	for _, c := range comments {
		payload = append(payload, app.newCommentPayload(c))
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"comments": payload, "next_cursor": next}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

type createCommentRequest struct {
	Content string `json:"content"`
}

func (app *application) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	var input createCommentRequest

	err := app.parseJSON(w, r, &input)
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	comment, err := app.commentService.Create(r.Context(), app.getSessionContext(r), app.readPathParam(r, "id"), input.Content)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusCreated, envelope{"comment": app.newCommentPayload(*comment)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	id := app.readPathParam(r, "id")

	err := app.commentService.Delete(r.Context(), app.getSessionContext(r), id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "comment deleted"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	username := app.readPathParam(r, "username")

	profile, err := app.userService.FindByUsername(r.Context(), app.getSessionContext(r), username)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	if profile == nil {
		app.notFoundErrorResponse(w, r)
		return
	}

	payload := profilePayload{Profile: *profile, ID: app.codec.Encode(profile.User.ID)}
	if profile.IsSelf || profile.IsSelfAdmin {
		payload.Email = profile.User.Email
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"profile": payload}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) getUserBlogsHandler(w http.ResponseWriter, r *http.Request) {
	id := app.readPathParam(r, "id")

	pageSize, cursor, err := app.readPageParams(r, defaultPageSize)
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	blogs, next, err := app.userService.FindBlogs(r.Context(), app.getSessionContext(r), id, pageSize, cursor)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"blogs": app.newBlogListPayload(blogs), "next_cursor": next}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) getUserLikedBlogsHandler(w http.ResponseWriter, r *http.Request) {
	id := app.readPathParam(r, "id")

	pageSize, cursor, err := app.readPageParams(r, defaultPageSize)
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	blogs, next, err := app.userService.FindLikedBlogs(r.Context(), app.getSessionContext(r), id, pageSize, cursor)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"blogs": app.newBlogListPayload(blogs), "next_cursor": next}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) getFeedHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := app.readLimitParam(r, 0)
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	views, err := app.feedService.GetBlogsFeed(r.Context(), app.getSessionContext(r), limit)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	payload := make([]blogViewPayload, 0, len(views))
	for _, v := range views {
		payload = append(payload, app.newBlogViewPayload(v))
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"blogs": payload}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) contactMessageHandler(w http.ResponseWriter, r *http.Request) {
	var input mailservice.ContactMessage

	err := app.parseJSON(w, r, &input)
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	v := common.NewValidator()
	v.Check(input.Name != "", "name", "must be provided")
	v.Check(len(input.Name) <= 100, "name", "must not be more than 100 characters")
	v.CheckEmail(input.Email)
	v.Check(input.Subject != "", "subject", "must be provided")
	v.Check(len(input.Subject) <= 200, "subject", "must not be more than 200 characters")
	v.Check(input.Message != "", "message", "must be provided")
	v.Check(len(input.Message) <= 5000, "message", "must not be more than 5000 characters")
	if !v.Valid() {
		app.failedValidationErrorResponse(w, r, v.Errors)
		return
	}

	data, err := json.Marshal(input)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.broker.Publish(r.Context(), data, common.ContactMessageKey, common.MailExchange)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusAccepted, envelope{"message": "contact message received"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) newsletterSignupHandler(w http.ResponseWriter, r *http.Request) {
	var input mailservice.NewsletterSignup

	err := app.parseJSON(w, r, &input)
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	v := common.NewValidator()
	v.CheckEmail(input.Email)
	if !v.Valid() {
		app.failedValidationErrorResponse(w, r, v.Errors)
		return
	}

	data, err := json.Marshal(input)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.broker.Publish(r.Context(), data, common.NewsletterSignupKey, common.MailExchange)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusAccepted, envelope{"message": "newsletter signup received"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
