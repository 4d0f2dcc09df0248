package generator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Synthetic builds feeds locally with gofakeit. It honours the requested
// shape exactly and is used for development and tests.
type Synthetic struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewSynthetic returns a synthetic generator. A zero seed picks a random one.
func NewSynthetic(seed int64) *Synthetic {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthetic{
		faker: gofakeit.New(seed),
		now:   time.Now,
	}
}

// WithClock overrides the clock used for timestamps.
func (g *Synthetic) WithClock(now func() time.Time) *Synthetic {
	g.now = now
	return g
}

// Name implements Generator.
func (g *Synthetic) Name() string { return "synthetic" }

// Generate implements Generator.
func (g *Synthetic) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	f := g.faker
	now := g.now().UTC()
	windowSecs := int(req.Window.Seconds())
	if windowSecs <= 60 {
		windowSecs = int((24 * time.Hour).Seconds())
	}

	resp := &Response{
		Users: make([]UserPayload, 0, req.Users),
		Posts: make([]PostPayload, 0, req.Posts),
	}
	for i := 0; i < req.Users; i++ {
		username := strings.ToLower(f.Username()) + fmt.Sprintf("%d", f.Number(10, 99))
		resp.Users = append(resp.Users, UserPayload{
			ID:        f.UUID(),
			Name:      f.Name(),
			Username:  username,
			AvatarURL: fmt.Sprintf("https://picsum.photos/seed/%s/100/100", username),
		})
	}
	if len(resp.Users) == 0 {
		return resp, nil
	}

	for i := 0; i < req.Posts; i++ {
		author := resp.Users[f.Number(0, len(resp.Users)-1)]
		postedAt := now.Add(-time.Duration(f.Number(60, windowSecs)) * time.Second)

		sentences := make([]string, f.Number(1, 3))
		for j := range sentences {
			sentences[j] = f.Sentence(f.Number(6, 14))
		}

		post := PostPayload{
			ID:        f.UUID(),
			AuthorID:  author.ID,
			Content:   strings.Join(sentences, " "),
			Timestamp: postedAt.Format(time.RFC3339),
			LikeCount: f.Number(0, req.MaxLikes),
			Comments:  []CommentPayload{},
		}

		// comments land strictly between the post and now, in order
		at := postedAt
		for j, n := 0, f.Number(0, 3); j < n; j++ {
			gap := now.Sub(at) / 2
			if gap < time.Second {
				break
			}
			at = at.Add(time.Duration(f.Number(1, int(gap.Seconds()))) * time.Second)
			post.Comments = append(post.Comments, CommentPayload{
				ID:        f.UUID(),
				AuthorID:  resp.Users[f.Number(0, len(resp.Users)-1)].ID,
				Text:      f.Sentence(f.Number(3, 10)),
				Timestamp: at.Format(time.RFC3339),
			})
		}
		resp.Posts = append(resp.Posts, post)
	}
	return resp, nil
}
