package commentservice

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/metapresshq/metapress/internal/blogservice"
	"github.com/metapresshq/metapress/internal/common"
)

// FindByBlogID returns one page of a blog's comments, newest first.
//
// The "empty" meta sentinel short-circuits blogs known to have no comments
// without touching the sorted index or the database. When the index is warm,
// a page of ids is read from the sorted index and hydrated from the
// per-comment hashes in one pipelined round trip. If any hash has expired
// independently of the index the page would be silently wrong, so the whole
// read falls through to the database and repopulates both structures.
func (s *CommentService) FindByBlogID(ctx context.Context, blogPublicID string, pageSize int, cursor *int64) ([]Comment, *int64, error) {
	blogID, err := s.codec.Decode(blogPublicID)
	if err != nil {
		return nil, nil, nil
	}

	if pageSize < 1 {
		pageSize = 10
	}

	meta, err := s.c.Get(ctx, common.KeyBlogCommentsMeta(blogID))
	if err != nil && !errors.Is(err, common.ErrCacheMiss) {
		s.cacheSoftFail("read comments meta", err)
	}

	switch common.IndexState(meta) {
	case common.IndexEmpty:
		return nil, nil, nil
	case common.IndexOK:
		comments, next, ok := s.cachedPage(ctx, blogID, pageSize, cursor)
		if ok {
			return comments, next, nil
		}
	}

	return s.dbPage(ctx, blogID, pageSize, cursor)
}

// cachedPage reads a page from the sorted index and hydrates it. ok is false
// whenever the result cannot be trusted: cache error, a hash expired under
// the index, or a short page. The index may hold only the pages read so far,
// so anything less than a full page must be re-checked against the database.
func (s *CommentService) cachedPage(ctx context.Context, blogID, pageSize int, cursor *int64) ([]Comment, *int64, bool) {
	ids, err := s.c.ZRevRangeByScore(ctx, common.KeyBlogComments(blogID), blogservice.CursorMax(cursor), int64(pageSize))
	if err != nil {
		s.cacheSoftFail("read comments index", err)
		return nil, nil, false
	}

	if len(ids) < pageSize {
		return nil, nil, false
	}

	batch := s.c.Batch()
	results := make([]*common.BatchMap, len(ids))
	for i, id := range ids {
		commentID, err := strconv.Atoi(id)
		if err != nil {
			return nil, nil, false
		}
		results[i] = batch.HGetAll(common.KeyComment(commentID))
	}

	if err := batch.Exec(ctx); err != nil {
		s.cacheSoftFail("hydrate comments", err)
		return nil, nil, false
	}

	comments := make([]Comment, 0, len(ids))
	for _, res := range results {
		fields, err := res.Result()
		if err != nil {
			return nil, nil, false
		}
		comment, ok := unflattenComment(fields)
		if !ok {
			// a hash expired under the index: the page is unreliable
			return nil, nil, false
		}
		comments = append(comments, *comment)
	}

	var next *int64
	if len(comments) == pageSize {
		ms := comments[len(comments)-1].CreatedAt.UnixMilli()
		next = &ms
	}

	return comments, next, true
}

// dbPage is the authoritative read. It repopulates the per-comment hashes on
// every page, but the sorted index and the meta sentinel only on the newest
// page (cursor == nil): priming the index from a cursor-bounded page would
// leave a non-prefix index that a later page-one read would trust, hiding
// the newest comments. The index TTL is shorter than the hash TTL so the
// index always expires first.
func (s *CommentService) dbPage(ctx context.Context, blogID, pageSize int, cursor *int64) ([]Comment, *int64, error) {
	comments, err := s.m.findManyByBlogID(ctx, blogID, pageSize, cursorTime(cursor))
	if err != nil {
		return nil, nil, err
	}

	if len(comments) == 0 && cursor == nil {
		if err := s.c.Set(ctx, common.KeyBlogCommentsMeta(blogID), string(common.IndexEmpty), common.CommentIndexTTL); err != nil {
			s.cacheSoftFail("write comments meta", err)
		}
		return nil, nil, nil
	}

	batch := s.c.Batch()
	for i := range comments {
		c := &comments[i]
		batch.HSet(common.KeyComment(c.ID), flattenComment(c))
		batch.Expire(common.KeyComment(c.ID), common.CommentTTL)
		if cursor == nil {
			batch.ZAdd(common.KeyBlogComments(blogID), common.ZMember{
				Score: float64(c.CreatedAt.UnixMilli()),
				Value: strconv.Itoa(c.ID),
			})
		}
	}
	if cursor == nil {
		batch.Expire(common.KeyBlogComments(blogID), common.CommentIndexTTL)
		batch.Set(common.KeyBlogCommentsMeta(blogID), string(common.IndexOK), common.CommentIndexTTL)
	}
	if err := batch.Exec(ctx); err != nil {
		s.cacheSoftFail("repopulate comments", err)
	}

	var next *int64
	if len(comments) == pageSize {
		ms := comments[len(comments)-1].CreatedAt.UnixMilli()
		next = &ms
	}

	return comments, next, nil
}

// Create inserts the comment with the caller's author snapshot and writes its
// hash, index entry and meta flag in a single pipelined round trip.
func (s *CommentService) Create(ctx context.Context, session common.Session, blogPublicID, content string) (*Comment, error) {
	if session.IsAnonymous() {
		return nil, common.ErrUnauthorized
	}

	blogID, err := s.codec.Decode(blogPublicID)
	if err != nil {
		return nil, ErrRecordNotFound
	}

	v := common.NewValidator()
	validateContent(v, content)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	comment := &Comment{
		Content: content,
		BlogID:  blogID,
		UserID:  session.UserID,
	}
	comment.Author.Name = session.Name
	comment.Author.Username = session.Username
	comment.Author.Image = session.Image

	if err := s.m.insert(ctx, comment); err != nil {
		if blogservice.ForeignKeyError(err, "comments_blog_id_fkey") {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	batch := s.c.Batch()
	batch.HSet(common.KeyComment(comment.ID), flattenComment(comment))
	batch.Expire(common.KeyComment(comment.ID), common.CommentTTL)
	batch.ZAdd(common.KeyBlogComments(blogID), common.ZMember{
		Score: float64(comment.CreatedAt.UnixMilli()),
		Value: strconv.Itoa(comment.ID),
	})
	batch.Expire(common.KeyBlogComments(blogID), common.CommentIndexTTL)
	batch.Set(common.KeyBlogCommentsMeta(blogID), string(common.IndexOK), common.CommentIndexTTL)
	if err := batch.Exec(ctx); err != nil {
		s.cacheSoftFail("populate created comment", err)
	}

	return comment, nil
}

// Delete removes the comment (author or admin only, enforced in SQL) and
// drops its hash and index entry in one round trip.
func (s *CommentService) Delete(ctx context.Context, session common.Session, commentPublicID string) error {
	if session.IsAnonymous() {
		return common.ErrUnauthorized
	}

	commentID, err := s.codec.Decode(commentPublicID)
	if err != nil {
		return ErrRecordNotFound
	}

	blogID, err := s.m.delete(ctx, commentID, session.UserID, session.IsAdmin())
	if err != nil {
		return err
	}

	batch := s.c.Batch()
	batch.Del(common.KeyComment(commentID))
	batch.ZRem(common.KeyBlogComments(blogID), strconv.Itoa(commentID))
	if err := batch.Exec(ctx); err != nil {
		s.cacheSoftFail("clean deleted comment", err)
	}

	return nil
}

func (s *CommentService) cacheSoftFail(op string, err error) {
	s.logger.Warn("cache operation failed", slog.String("op", op), slog.String("error", err.Error()))
}
