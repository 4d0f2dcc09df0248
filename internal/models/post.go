package models

import (
	"encoding/json"
	"slices"
	"time"
)

// FallbackTimestamp is the instant used for timestamps that could not be parsed.
// It sorts after every real post in a newest-first feed.
var FallbackTimestamp = time.Unix(0, 0).UTC()

// UserSet is a set of user IDs. It serializes as a sorted JSON array.
type UserSet map[string]struct{}

// NewUserSet builds a set from ids, dropping duplicates.
func NewUserSet(ids ...string) UserSet {
	s := make(UserSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s UserSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids in the set.
func (s UserSet) Len() int {
	return len(s)
}

// With returns a copy of the set that also contains id.
func (s UserSet) With(id string) UserSet {
	out := make(UserSet, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	out[id] = struct{}{}
	return out
}

// Without returns a copy of the set that does not contain id.
func (s UserSet) Without(id string) UserSet {
	out := make(UserSet, len(s))
	for k := range s {
		if k != id {
			out[k] = struct{}{}
		}
	}
	return out
}

// IDs returns the ids in ascending order.
func (s UserSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for k := range s {
		ids = append(ids, k)
	}
	slices.Sort(ids)
	return ids
}

// MarshalJSON encodes the set as a sorted array.
func (s UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON decodes an array of ids, collapsing duplicates.
func (s *UserSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewUserSet(ids...)
	return nil
}

// Post represents a post in the feed.
//
// LikeCount and LikedBy change together on every like toggle. A post returned
// by the feed engine is a snapshot and must not be modified; the engine
// replaces the value instead.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	LikeCount int       `json:"likeCount"`
	LikedBy   UserSet   `json:"likedBy"`
	Comments  []Comment `json:"comments"`
}

// Clone returns a deep copy of the post.
func (p *Post) Clone() *Post {
	out := *p
	out.LikedBy = make(UserSet, len(p.LikedBy))
	for k := range p.LikedBy {
		out.LikedBy[k] = struct{}{}
	}
	out.Comments = slices.Clone(p.Comments)
	if out.Comments == nil {
		out.Comments = []Comment{}
	}
	return &out
}

// LikedByUser reports whether the given user has liked the post.
func (p *Post) LikedByUser(userID string) bool {
	return p.LikedBy.Has(userID)
}
