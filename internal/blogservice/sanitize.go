package blogservice

import (
	"encoding/json"
	"regexp"
)

var scriptTagPattern = regexp.MustCompile(`(?i)<\s*script[^>]*>(.*?)<\s*/\s*script\s*>`)

// sanitizeContent strips script tags from the rich-text document before it is
// stored. The document structure itself is opaque to the core.
func sanitizeContent(content json.RawMessage) json.RawMessage {
	return json.RawMessage(scriptTagPattern.ReplaceAllString(string(content), ""))
}
