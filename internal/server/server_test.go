package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"novafeed/internal/config"
	"novafeed/internal/generator"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGenerator is a mock of the generator.Generator interface
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Name() string { return "mock" }

func (m *MockGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generator.Response), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                  "8375",
		Env:                   "test",
		Generator:             config.GeneratorSynthetic,
		FeedUserCount:         5,
		FeedPostCount:         8,
		SessionIdleTTLMinutes: 60,
		SessionLimit:          10,
		TracingSampleRatio:    1,
	}
}

func feedResponse() *generator.Response {
	return &generator.Response{
		Users: []generator.UserPayload{
			{ID: "u1", Name: "Ada Park", Username: "adapark", AvatarURL: "https://picsum.photos/seed/adapark/200"},
			{ID: "u2", Name: "Ben Ortiz", Username: "benortiz", AvatarURL: "https://picsum.photos/seed/benortiz/200"},
		},
		Posts: []generator.PostPayload{
			{ID: "p1", AuthorID: "u1", Content: "Morning run done.", Timestamp: "2026-03-01T08:00:00Z", LikeCount: 12},
			{ID: "p2", AuthorID: "u2", Content: "Climbing day.", Timestamp: "2026-03-01T10:00:00Z", LikeCount: 3},
			{ID: "p3", AuthorID: "ghost", Content: "Who wrote this?", Timestamp: "2026-03-01T09:00:00Z"},
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, gen generator.Generator, rdb *redis.Client) (*fiber.App, *Server) {
	t.Helper()
	s := NewServerWithDeps(cfg, gen, rdb)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	app := fiber.New()
	s.SetupRoutes(app)
	return app, s
}

func readyGenerator() *MockGenerator {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(feedResponse(), nil)
	return gen
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createReadySession(t *testing.T, app *fiber.App) SessionResponse {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions?wait=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var sess SessionResponse
	require.NoError(t, json.Unmarshal(body, &sess))
	require.Equal(t, "ready", string(sess.Status.State))
	return sess
}

func decodePosts(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var posts []map[string]any
	require.NoError(t, json.Unmarshal(body, &posts))
	return posts
}

func postIDs(posts []map[string]any) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p["id"].(string))
	}
	return ids
}

func TestCreateSession(t *testing.T) {
	gen := readyGenerator()
	app, _ := newTestApp(t, testConfig(), gen, nil)

	sess := createReadySession(t, app)

	require.NotNil(t, sess.CurrentUser)
	assert.Equal(t, "u1", sess.CurrentUser.ID)
	assert.Equal(t, uint64(1), sess.Version)
	assert.Equal(t, "feed", string(sess.View.Mode))
	gen.AssertNumberOfCalls(t, "Generate", 1)

	resp, body := doJSON(t, app, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"state":"ready"`)
}

func TestCreateSession_PassesConfiguredShape(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req generator.Request) bool {
		return req.Users == 3 && req.Posts == 4
	})).Return(feedResponse(), nil)

	cfg := testConfig()
	cfg.FeedUserCount = 3
	cfg.FeedPostCount = 4
	app, _ := newTestApp(t, cfg, gen, nil)

	createReadySession(t, app)
	gen.AssertExpectations(t)
}

func TestFeedFlow(t *testing.T) {
	app, _ := newTestApp(t, testConfig(), readyGenerator(), nil)
	sess := createReadySession(t, app)
	base := "/api/sessions/" + sess.ID

	resp, body := doJSON(t, app, http.MethodGet, base+"/posts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	posts := decodePosts(t, body)
	assert.Equal(t, []string{"p2", "p3", "p1"}, postIDs(posts))
	assert.NotContains(t, posts[1], "author", "unknown authors are left out")
	assert.Equal(t, "benortiz", posts[0]["author"].(map[string]any)["username"])
	assert.Equal(t, []any{}, posts[0]["likedBy"])

	// create
	resp, body = doJSON(t, app, http.MethodPost, base+"/posts", fiber.Map{"content": "hello"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created map[string]any
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "u1", created["authorId"])
	assert.Equal(t, float64(0), created["likeCount"])

	_, body = doJSON(t, app, http.MethodGet, base+"/posts", nil)
	assert.Equal(t, created["id"], decodePosts(t, body)[0]["id"])

	// like, unlike
	resp, body = doJSON(t, app, http.MethodPost, base+"/posts/p1/like", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var liked map[string]any
	require.NoError(t, json.Unmarshal(body, &liked))
	assert.Equal(t, float64(13), liked["likeCount"])
	assert.Equal(t, true, liked["likedByMe"])
	assert.Equal(t, []any{"u1"}, liked["likedBy"])

	_, body = doJSON(t, app, http.MethodPost, base+"/posts/p1/like", nil)
	var unliked map[string]any
	require.NoError(t, json.Unmarshal(body, &unliked))
	assert.Equal(t, float64(12), unliked["likeCount"])
	assert.Equal(t, false, unliked["likedByMe"])

	// comment
	resp, body = doJSON(t, app, http.MethodPost, base+"/posts/p2/comments", fiber.Map{"text": "nice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"authorId":"u1"`)

	// profile view
	resp, body = doJSON(t, app, http.MethodPut, base+"/selection", fiber.Map{"authorId": "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"mode":"profile","authorId":"u1","scrollToTop":true}`, string(body))

	_, body = doJSON(t, app, http.MethodGet, base+"/posts", nil)
	assert.Equal(t, []string{created["id"].(string), "p1"}, postIDs(decodePosts(t, body)))

	_, body = doJSON(t, app, http.MethodGet, base+"/posts?all=true", nil)
	assert.Len(t, decodePosts(t, body), 4)

	resp, body = doJSON(t, app, http.MethodGet, base+"/users/u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"postCount":2`)

	resp, body = doJSON(t, app, http.MethodPut, base+"/selection", fiber.Map{"authorId": ""})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"mode":"feed","scrollToTop":true}`, string(body))

	_, body = doJSON(t, app, http.MethodGet, base+"/posts", nil)
	assert.Len(t, decodePosts(t, body), 4)
}

func TestFeedErrors(t *testing.T) {
	app, _ := newTestApp(t, testConfig(), readyGenerator(), nil)
	sess := createReadySession(t, app)
	base := "/api/sessions/" + sess.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown session", http.MethodGet, "/api/sessions/nope/posts", nil, http.StatusNotFound, "NOT_FOUND"},
		{"blank post", http.MethodPost, base + "/posts", fiber.Map{"content": "   "}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid body", http.MethodPost, base + "/posts", "not an object", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"like unknown post", http.MethodPost, base + "/posts/missing/like", nil, http.StatusNotFound, "NOT_FOUND"},
		{"comment unknown post", http.MethodPost, base + "/posts/missing/comments", fiber.Map{"text": "hi"}, http.StatusNotFound, "NOT_FOUND"},
		{"blank comment", http.MethodPost, base + "/posts/p1/comments", fiber.Map{"text": ""}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"select unknown author", http.MethodPut, base + "/selection", fiber.Map{"authorId": "ghost"}, http.StatusNotFound, "NOT_FOUND"},
		{"missing author lookup", http.MethodGet, base + "/users/ghost", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bootstrap after success", http.MethodPost, base + "/bootstrap", nil, http.StatusConflict, "CONFLICT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))

			var errResp struct {
				Code string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, tt.code, errResp.Code)
		})
	}
}

func TestBootstrapFailureAndRetry(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("provider unavailable")).Once()
	gen.On("Generate", mock.Anything, mock.Anything).Return(feedResponse(), nil).Once()
	app, _ := newTestApp(t, testConfig(), gen, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions?wait=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess SessionResponse
	require.NoError(t, json.Unmarshal(body, &sess))
	assert.Equal(t, "failed", string(sess.Status.State))
	assert.Contains(t, sess.Status.Message, "provider unavailable")
	assert.Nil(t, sess.CurrentUser)

	base := "/api/sessions/" + sess.ID
	resp, _ = doJSON(t, app, http.MethodPost, base+"/posts", fiber.Map{"content": "hello"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, body = doJSON(t, app, http.MethodGet, base+"/posts", nil)
	assert.Empty(t, decodePosts(t, body))

	resp, body = doJSON(t, app, http.MethodPost, base+"/bootstrap?wait=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"state":"ready"`)
	gen.AssertExpectations(t)
}

func TestEmptyUsersDisablesMutations(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(&generator.Response{
		Users: []generator.UserPayload{},
		Posts: []generator.PostPayload{{ID: "p1", AuthorID: "ghost", Timestamp: "2026-03-01T08:00:00Z"}},
	}, nil)
	app, _ := newTestApp(t, testConfig(), gen, nil)

	sess := createReadySession(t, app)
	assert.Nil(t, sess.CurrentUser)

	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions/"+sess.ID+"/posts/p1/like", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "no acting user")
}

func TestGetPosts_ETag(t *testing.T) {
	app, _ := newTestApp(t, testConfig(), readyGenerator(), nil)
	sess := createReadySession(t, app)
	path := "/api/sessions/" + sess.ID + "/posts"

	resp, _ := doJSON(t, app, http.MethodGet, path, nil)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("If-None-Match", etag)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	doJSON(t, app, http.MethodPost, path+"/p1/like", nil)

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, etag, resp.Header.Get("ETag"))
}

func TestDeleteSession(t *testing.T) {
	app, s := newTestApp(t, testConfig(), readyGenerator(), nil)
	sess := createReadySession(t, app)

	resp, _ := doJSON(t, app, http.MethodDelete, "/api/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, s.sessions.Len())

	resp, _ = doJSON(t, app, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.SessionLimit = 1
	app, _ := newTestApp(t, cfg, readyGenerator(), nil)

	createReadySession(t, app)
	resp, _ := doJSON(t, app, http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBootstrapRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.BootstrapRateLimit = 1
	cfg.BootstrapRateWindowSeconds = 60
	app, _ := newTestApp(t, cfg, readyGenerator(), rdb)

	createReadySession(t, app)
	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), "RATE_LIMITED")
}

func TestHealthChecks(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		app, _ := newTestApp(t, testConfig(), readyGenerator(), nil)
		resp, body := doJSON(t, app, http.MethodGet, "/health/live", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"status":"up"`)
	})

	t.Run("ready without redis", func(t *testing.T) {
		app, _ := newTestApp(t, testConfig(), readyGenerator(), nil)
		resp, body := doJSON(t, app, http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"redis":"unavailable"`)
	})

	t.Run("ready with redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		app, _ := newTestApp(t, testConfig(), readyGenerator(), rdb)

		resp, body := doJSON(t, app, http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"redis":"healthy"`)
	})

	t.Run("redis down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		app, _ := newTestApp(t, testConfig(), readyGenerator(), rdb)
		mr.Close()

		resp, body := doJSON(t, app, http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Contains(t, string(body), `"redis":"unhealthy"`)
	})
}

func TestFeatureFlags(t *testing.T) {
	cfg := testConfig()
	cfg.FeatureFlags = "reconcile_like_counts=on"
	app, _ := newTestApp(t, cfg, readyGenerator(), nil)

	resp, body := doJSON(t, app, http.MethodGet, "/api/feature-flags?session=abc", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"raw":{"reconcile_like_counts":"on"},"evaluated":{"reconcile_like_counts":true}}`, string(body))

	sess := createReadySession(t, app)
	_, body = doJSON(t, app, http.MethodGet, "/api/sessions/"+sess.ID+"/posts", nil)
	for _, p := range decodePosts(t, body) {
		assert.Equal(t, float64(0), p["likeCount"], "reconciled counts match the empty like set")
	}
}

func TestSetupMiddleware(t *testing.T) {
	s := NewServerWithDeps(testConfig(), readyGenerator(), nil)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	app := fiber.New()
	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	req := httptest.NewRequest(http.MethodGet, "/api/feature-flags", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
	assert.Equal(t, "http://localhost:5173", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewGenerator(t *testing.T) {
	cfg := testConfig()
	gen, err := NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", gen.Name())

	cfg.Generator = config.GeneratorOpenAI
	_, err = NewGenerator(cfg)
	assert.Error(t, err, "openai needs an API key")

	cfg.OpenAIAPIKey = "sk-test"
	gen, err = NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", gen.Name())

	cfg.Generator = "llama"
	_, err = NewGenerator(cfg)
	assert.Error(t, err)
}
