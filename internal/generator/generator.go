// Package generator is the boundary to the external content provider that
// produces the initial users, posts and comments of a feed.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedResponse is returned when the provider output is not a JSON
// object carrying both the users and posts keys.
var ErrMalformedResponse = errors.New("malformed feed response")

// Generator produces one feed bundle per call. Implementations make a single
// provider request and never retry.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is the shape the provider is asked for. It is a hint only; callers
// must cope with responses that deviate from it.
type Request struct {
	AppName  string
	Users    int
	Posts    int
	MaxLikes int
	Window   time.Duration
}

// DefaultRequest asks for five users and eight posts from the last day.
func DefaultRequest() Request {
	return Request{
		AppName:  "NovaFeed",
		Users:    5,
		Posts:    8,
		MaxLikes: 150,
		Window:   24 * time.Hour,
	}
}

// Response is the raw provider payload. Timestamps are kept as strings;
// parsing and validation happen in the feed loader.
type Response struct {
	Users []UserPayload `json:"users"`
	Posts []PostPayload `json:"posts"`
}

// UserPayload is a generated user.
type UserPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// PostPayload is a generated post. It carries no likedBy list.
type PostPayload struct {
	ID        string           `json:"id"`
	AuthorID  string           `json:"authorId"`
	Content   string           `json:"content"`
	Timestamp string           `json:"timestamp"`
	LikeCount int              `json:"likeCount"`
	Comments  []CommentPayload `json:"comments"`
}

// CommentPayload is a generated comment.
type CommentPayload struct {
	ID        string `json:"id"`
	AuthorID  string `json:"authorId"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Decode parses provider output. Markdown code fences around the JSON are
// tolerated; a missing or null users/posts key is a schema violation.
func Decode(data []byte) (*Response, error) {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for _, key := range []string{"users", "posts"} {
		raw, ok := keys[key]
		if !ok || string(raw) == "null" {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedResponse, key)
		}
	}

	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &resp, nil
}
