package common

import (
	"strconv"
	"time"
)

// IndexState is the value of a cached index "meta" sentinel. It distinguishes
// a populated index (ok) and a checked-but-empty result (empty) from a key
// that was never written or has expired (unknown).
type IndexState string

const (
	IndexOK      IndexState = "ok"
	IndexEmpty   IndexState = "empty"
	IndexUnknown IndexState = ""
)

// TTLs per entity class. The comment index and its meta sentinel expire
// before the individual comment hashes so that an index can never outlive
// the records it points at.
const (
	BlogTTL         = 24 * time.Hour
	UserTTL         = 12 * time.Hour
	UserBlogsTTL    = 6 * time.Hour
	UserLikedTTL    = 24 * time.Hour
	CommentTTL      = 6 * time.Hour
	CommentIndexTTL = CommentTTL - 10*time.Minute
	FeedTTL         = time.Hour
)

func KeyBlog(id int) string {
	return "blog:" + strconv.Itoa(id)
}

func KeyBlogLikesCount(id int) string {
	return "blog:" + strconv.Itoa(id) + ":likes:count"
}

// KeyBlogLikes is the set of user ids that liked the blog.
func KeyBlogLikes(id int) string {
	return "blog:" + strconv.Itoa(id) + ":likes"
}

// KeyBlogComments is the sorted index of comment ids scored by created_at.
func KeyBlogComments(id int) string {
	return "blog:" + strconv.Itoa(id) + ":comments"
}

func KeyBlogCommentsMeta(id int) string {
	return "blog:" + strconv.Itoa(id) + ":comments:meta"
}

func KeyComment(id int) string {
	return "comment:" + strconv.Itoa(id)
}

func KeyUser(username string) string {
	return "user:" + username
}

// KeyUsernames is the global username membership set used as a fast
// negative-existence filter.
func KeyUsernames() string {
	return "usernames"
}

// KeyUserBlogs is the sorted index of a user's authored blog ids scored by
// created_at.
func KeyUserBlogs(userID int) string {
	return "user:" + strconv.Itoa(userID) + ":blogs"
}

func KeyUserBlogsMeta(userID int) string {
	return "user:" + strconv.Itoa(userID) + ":blogs:meta"
}

// KeyUserLiked is the sorted index of blog ids the user liked, scored by the
// like timestamp.
func KeyUserLiked(userID int) string {
	return "user:" + strconv.Itoa(userID) + ":liked"
}

func KeyUserLikedMeta(userID int) string {
	return "user:" + strconv.Itoa(userID) + ":liked:meta"
}

// KeyFeedBlogs is the global set of sampled blog ids backing the explore feed.
func KeyFeedBlogs() string {
	return "feed:blogs"
}

// KeySession holds the session record written by the auth provider.
func KeySession(token string) string {
	return "session:" + token
}
