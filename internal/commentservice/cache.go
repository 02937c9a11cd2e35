package commentservice

import (
	"strconv"
	"time"
)

// Comments are cached as flattened hash maps rather than JSON blobs, so a
// single field can be read without deserializing the whole record and each
// record carries its own TTL independent of the index.
func flattenComment(c *Comment) map[string]string {
	return map[string]string{
		"id":              strconv.Itoa(c.ID),
		"content":         c.Content,
		"blog_id":         strconv.Itoa(c.BlogID),
		"user_id":         strconv.Itoa(c.UserID),
		"author_name":     c.Author.Name,
		"author_username": c.Author.Username,
		"author_image":    c.Author.Image,
		"created_at":      strconv.FormatInt(c.CreatedAt.UnixMilli(), 10),
		"updated_at":      strconv.FormatInt(c.UpdatedAt.UnixMilli(), 10),
	}
}

func unflattenComment(fields map[string]string) (*Comment, bool) {
	if len(fields) == 0 {
		return nil, false
	}

	id, err := strconv.Atoi(fields["id"])
	if err != nil {
		return nil, false
	}
	blogID, err := strconv.Atoi(fields["blog_id"])
	if err != nil {
		return nil, false
	}
	userID, err := strconv.Atoi(fields["user_id"])
	if err != nil {
		return nil, false
	}
	createdMs, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, false
	}
	updatedMs, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, false
	}

	c := &Comment{
		ID:        id,
		Content:   fields["content"],
		BlogID:    blogID,
		UserID:    userID,
		CreatedAt: time.UnixMilli(createdMs),
		UpdatedAt: time.UnixMilli(updatedMs),
	}
	c.Author.Name = fields["author_name"]
	c.Author.Username = fields["author_username"]
	c.Author.Image = fields["author_image"]

	return c, true
}
