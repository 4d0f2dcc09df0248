package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"novafeed/internal/generator"
	"novafeed/internal/models"

	"github.com/stretchr/testify/require"
)

// generatorStub is a stub for generator.Generator.
type generatorStub struct {
	generateFn func(context.Context, generator.Request) (*generator.Response, error)
	calls      int
}

func (g *generatorStub) Name() string { return "stub" }

func (g *generatorStub) Generate(ctx context.Context, req generator.Request) (*generator.Response, error) {
	g.calls++
	return g.generateFn(ctx, req)
}

func respondWith(resp *generator.Response) *generatorStub {
	return &generatorStub{
		generateFn: func(_ context.Context, _ generator.Request) (*generator.Response, error) {
			return resp, nil
		},
	}
}

func failWith(err error) *generatorStub {
	return &generatorStub{
		generateFn: func(_ context.Context, _ generator.Request) (*generator.Response, error) {
			return nil, err
		},
	}
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
}

// sampleResponse is two users and three posts, deliberately out of order.
func sampleResponse() *generator.Response {
	return &generator.Response{
		Users: []generator.UserPayload{
			{ID: "u1", Name: "Ada Park", Username: "adapark", AvatarURL: "https://picsum.photos/seed/adapark/200"},
			{ID: "u2", Name: "Ben Ortiz", Username: "benortiz", AvatarURL: "https://picsum.photos/seed/benortiz/200"},
		},
		Posts: []generator.PostPayload{
			{ID: "p1", AuthorID: "u1", Content: "Morning run done.", Timestamp: "2026-03-01T08:00:00Z", LikeCount: 12},
			{ID: "p2", AuthorID: "u2", Content: "New record on the climbing wall.", Timestamp: "2026-03-01T10:30:00Z", LikeCount: 3,
				Comments: []generator.CommentPayload{
					{ID: "c1", AuthorID: "u1", Text: "Nice!", Timestamp: "2026-03-01T10:45:00Z"},
				}},
			{ID: "p3", AuthorID: "u1", Content: "Coffee time.", Timestamp: "2026-03-01T09:15:00Z", LikeCount: 0},
		},
	}
}

// loadedSession returns a ready session built from sampleResponse.
func loadedSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithIDGenerator(sequentialIDs())}, opts...)
	s := NewSession("s1", respondWith(sampleResponse()), opts...)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func postIDs(posts []*models.Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}
