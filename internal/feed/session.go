// Package feed is the in-memory feed state engine: one Session holds the
// users, posts and comments of a single simulated feed, loads them once from a
// generator and applies the acting user's posts, likes and comments.
//
// Every mutation replaces the posts collection with a new slice in which only
// the targeted post is a new value. Slices and posts handed out by a Session
// are snapshots and must not be modified by callers.
package feed

import (
	"slices"
	"strings"
	"sync"
	"time"

	"novafeed/internal/generator"
	"novafeed/internal/models"
	"novafeed/internal/observability"

	"github.com/google/uuid"
)

// Session is the feed state of one logical user session.
type Session struct {
	id             string
	gen            generator.Generator
	req            generator.Request
	now            func() time.Time
	newID          func() string
	reconcileLikes bool
	timeout        time.Duration

	mu       sync.RWMutex
	status   models.LoadStatus
	loading  bool
	users    []models.User
	posts    []*models.Post
	current  *models.User
	selected string
	version  uint64
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the clock used to stamp new posts and comments.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator overrides how IDs for new posts and comments are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

// WithRequest overrides the shape requested from the generator.
func WithRequest(req generator.Request) Option {
	return func(s *Session) { s.req = req }
}

// WithReconciledLikes makes loaded posts start with a like count derived from
// their (empty) like set instead of the provider's count.
func WithReconciledLikes(on bool) Option {
	return func(s *Session) { s.reconcileLikes = on }
}

// WithLoadTimeout bounds the generator call. Zero waits indefinitely.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// NewSession creates an empty session in the pending state. An empty id is
// replaced by a random UUID.
func NewSession(id string, gen generator.Generator, opts ...Option) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		id:     id,
		gen:    gen,
		req:    generator.DefaultRequest(),
		now:    time.Now,
		newID:  uuid.NewString,
		status: models.LoadStatus{State: models.LoadPending},
		users:  []models.User{},
		posts:  []*models.Post{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Status returns the bootstrap status.
func (s *Session) Status() models.LoadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Version increases on every committed load or applied mutation.
func (s *Session) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Users returns the users in the order the generator produced them.
func (s *Session) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users
}

// User looks up a user by ID. Posts and comments may reference authors that do
// not exist; callers skip those entities when ok is false.
func (s *Session) User(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

// CurrentUser returns the acting user. ok is false until a load installs at
// least one user.
func (s *Session) CurrentUser() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.User{}, false
	}
	return *s.current, true
}

// Posts returns every post, newest first.
func (s *Session) Posts() []*models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.posts
}

// Post looks up a post by ID.
func (s *Session) Post(id string) (*models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.posts[i], true
	}
	return nil, false
}

// CreatePost prepends a new post by the acting user. Content that is blank
// after trimming is rejected. ok is false when nothing changed.
func (s *Session) CreatePost(content string) (post *models.Post, ok bool) {
	defer func() { observability.RecordMutation("create_post", ok) }()

	if strings.TrimSpace(content) == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}

	post = &models.Post{
		ID:        s.newID(),
		AuthorID:  s.current.ID,
		Content:   content,
		Timestamp: s.now().UTC(),
		LikeCount: 0,
		LikedBy:   models.UserSet{},
		Comments:  []models.Comment{},
	}

	next := make([]*models.Post, 0, len(s.posts)+1)
	next = append(next, post)
	next = append(next, s.posts...)
	s.posts = next
	s.version++
	return post, true
}

// ToggleLike likes the post for the acting user, or unlikes it if the user
// already liked it. Two consecutive calls restore the original post state.
func (s *Session) ToggleLike(postID string) (post *models.Post, ok bool) {
	defer func() { observability.RecordMutation("toggle_like", ok) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	i := s.indexOf(postID)
	if i < 0 {
		return nil, false
	}

	old := s.posts[i]
	updated := *old
	userID := s.current.ID
	if old.LikedBy.Has(userID) {
		updated.LikedBy = old.LikedBy.Without(userID)
		updated.LikeCount = max(old.LikeCount-1, 0)
	} else {
		updated.LikedBy = old.LikedBy.With(userID)
		updated.LikeCount = old.LikeCount + 1
	}

	s.replace(i, &updated)
	return &updated, true
}

// AddComment appends a comment by the acting user to the end of the post's
// comments. Blank text is rejected.
func (s *Session) AddComment(postID, text string) (comment *models.Comment, ok bool) {
	defer func() { observability.RecordMutation("add_comment", ok) }()

	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	i := s.indexOf(postID)
	if i < 0 {
		return nil, false
	}

	c := models.Comment{
		ID:        s.newID(),
		AuthorID:  s.current.ID,
		Text:      text,
		Timestamp: s.now().UTC(),
	}

	old := s.posts[i]
	updated := *old
	updated.Comments = make([]models.Comment, len(old.Comments), len(old.Comments)+1)
	copy(updated.Comments, old.Comments)
	updated.Comments = append(updated.Comments, c)

	s.replace(i, &updated)
	return &c, true
}

// replace swaps in a new value for the post at i inside a fresh slice.
// Callers hold s.mu.
func (s *Session) replace(i int, p *models.Post) {
	next := slices.Clone(s.posts)
	next[i] = p
	s.posts = next
	s.version++
}

func (s *Session) indexOf(postID string) int {
	return slices.IndexFunc(s.posts, func(p *models.Post) bool { return p.ID == postID })
}
