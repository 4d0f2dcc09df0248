package feed

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"novafeed/internal/generator"
	"novafeed/internal/models"
	"novafeed/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrLoadInProgress is returned when a bootstrap is already running.
	ErrLoadInProgress = errors.New("feed bootstrap already in progress")
	// ErrAlreadyLoaded is returned once a bootstrap has succeeded.
	ErrAlreadyLoaded = errors.New("feed already loaded")
)

// timestampLayouts are tried in order when parsing provider timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// Load runs the bootstrap synchronously. It may be called again after a
// failure; otherwise a second call returns ErrAlreadyLoaded without calling
// the generator.
func (s *Session) Load(ctx context.Context) error {
	if err := s.beginLoad(); err != nil {
		return err
	}
	return s.runLoad(ctx)
}

// Start begins the bootstrap in the background and returns a channel that is
// closed once the session has left the pending state. The caller observes
// the outcome through Status. ctx should not be tied to a short-lived request.
func (s *Session) Start(ctx context.Context) (<-chan struct{}, error) {
	if err := s.beginLoad(); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.runLoad(ctx)
	}()
	return done, nil
}

// Loading reports whether a bootstrap is in flight.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Session) beginLoad() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.loading:
		return ErrLoadInProgress
	case s.status.State == models.LoadReady:
		return ErrAlreadyLoaded
	}
	s.loading = true
	s.status = models.LoadStatus{State: models.LoadPending}
	return nil
}

func (s *Session) runLoad(ctx context.Context) error {
	ctx = observability.WithSessionID(ctx, s.id)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	name := s.gen.Name()
	ctx, span := observability.StartSpan(ctx, "feed.bootstrap",
		attribute.String("feed.session_id", s.id),
		attribute.String("feed.generator", name),
	)

	track := observability.TrackBootstrap(name)
	finish := observability.StartOperation(ctx, "feed.bootstrap", slog.String("generator", name))

	bundle, err := s.fetch(ctx)
	if err != nil {
		appErr := models.NewBootstrapError(err)
		span.Finish(err)
		track("failed")
		finish(err)

		s.mu.Lock()
		s.loading = false
		s.status = models.LoadStatus{State: models.LoadFailed, Message: appErr.Error()}
		s.mu.Unlock()
		return appErr
	}

	s.mu.Lock()
	s.users = bundle.Users
	s.posts = bundle.Posts
	s.current = nil
	if len(bundle.Users) > 0 {
		first := bundle.Users[0]
		s.current = &first
	}
	s.selected = ""
	s.loading = false
	s.status = models.LoadStatus{State: models.LoadReady}
	s.version++
	s.mu.Unlock()

	span.Annotate(
		attribute.Int("feed.users", len(bundle.Users)),
		attribute.Int("feed.posts", len(bundle.Posts)),
	)
	span.Finish(nil)
	track("ready")
	finish(nil, slog.Int("users", len(bundle.Users)), slog.Int("posts", len(bundle.Posts)))
	return nil
}

// fetch calls the generator without holding the session lock.
func (s *Session) fetch(ctx context.Context) (*models.FeedBundle, error) {
	resp, err := s.gen.Generate(ctx, s.req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, generator.ErrMalformedResponse
	}
	return Normalize(resp, s.reconcileLikes), nil
}

// Normalize turns a provider response into a feed bundle. Users and posts
// with a blank or repeated id are dropped, keeping the first occurrence.
// Every post starts with an empty like set; its like count is the provider's
// (clamped at zero) unless reconcile is set, in which case it matches the set.
// Posts are sorted newest first; unparseable timestamps become
// models.FallbackTimestamp.
func Normalize(resp *generator.Response, reconcile bool) *models.FeedBundle {
	users := make([]models.User, 0, len(resp.Users))
	seenUsers := make(map[string]struct{}, len(resp.Users))
	for _, u := range resp.Users {
		if u.ID == "" {
			continue
		}
		if _, dup := seenUsers[u.ID]; dup {
			continue
		}
		seenUsers[u.ID] = struct{}{}
		users = append(users, models.User{
			ID:        u.ID,
			Name:      u.Name,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
		})
	}

	posts := make([]*models.Post, 0, len(resp.Posts))
	seenPosts := make(map[string]struct{}, len(resp.Posts))
	for _, p := range resp.Posts {
		if p.ID == "" {
			continue
		}
		if _, dup := seenPosts[p.ID]; dup {
			continue
		}
		seenPosts[p.ID] = struct{}{}

		likedBy := models.UserSet{}
		likeCount := max(p.LikeCount, 0)
		if reconcile {
			likeCount = likedBy.Len()
		}

		comments := make([]models.Comment, 0, len(p.Comments))
		for _, c := range p.Comments {
			ts, _ := ParseTimestamp(c.Timestamp)
			comments = append(comments, models.Comment{
				ID:        c.ID,
				AuthorID:  c.AuthorID,
				Text:      c.Text,
				Timestamp: ts,
			})
		}

		ts, _ := ParseTimestamp(p.Timestamp)
		posts = append(posts, &models.Post{
			ID:        p.ID,
			AuthorID:  p.AuthorID,
			Content:   p.Content,
			Timestamp: ts,
			LikeCount: likeCount,
			LikedBy:   likedBy,
			Comments:  comments,
		})
	}

	slices.SortStableFunc(posts, func(a, b *models.Post) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	return &models.FeedBundle{Users: users, Posts: posts}
}

// ParseTimestamp parses a provider timestamp into UTC. ok is false when no
// known layout matched, in which case models.FallbackTimestamp is returned.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.FallbackTimestamp, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return models.FallbackTimestamp, false
}
