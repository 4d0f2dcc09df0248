package server

import (
	"novafeed/internal/feed"
	"novafeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

// PostResponse is a post with its author resolved for display. Author is
// omitted when the post references an unknown user.
type PostResponse struct {
	*models.Post
	Author    *models.User `json:"author,omitempty"`
	LikedByMe bool         `json:"likedByMe"`
}

// UserResponse is a user with the post count shown on the profile header.
type UserResponse struct {
	models.User
	PostCount int `json:"postCount"`
}

func postResponses(sess *feed.Session, posts []*models.Post) []PostResponse {
	byID := make(map[string]models.User)
	for _, u := range sess.Users() {
		byID[u.ID] = u
	}
	me, _ := sess.CurrentUser()

	out := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		r := PostResponse{Post: p, LikedByMe: me.ID != "" && p.LikedByUser(me.ID)}
		if author, ok := byID[p.AuthorID]; ok {
			r.Author = &author
		}
		out = append(out, r)
	}
	return out
}

// GetUsers handles GET /api/sessions/:id/users
func (s *Server) GetUsers(c *fiber.Ctx) error {
	sess := currentSession(c)
	if notModified(c, sess, "users") {
		return c.SendStatus(fiber.StatusNotModified)
	}
	return c.JSON(sess.Users())
}

// GetUser handles GET /api/sessions/:id/users/:userId
func (s *Server) GetUser(c *fiber.Ctx) error {
	sess := currentSession(c)
	userID := c.Params("userId")

	user, ok := sess.User(userID)
	if !ok {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("User", userID))
	}
	return c.JSON(UserResponse{User: user, PostCount: sess.UserPostCount(userID)})
}

// GetPosts handles GET /api/sessions/:id/posts. It returns the posts visible
// for the current selection, or every post with ?all=true.
func (s *Server) GetPosts(c *fiber.Ctx) error {
	sess := currentSession(c)
	all := c.QueryBool("all")

	scope := "posts-" + sess.Selection()
	if all {
		scope = "posts-all"
	}
	if notModified(c, sess, scope) {
		return c.SendStatus(fiber.StatusNotModified)
	}

	posts := sess.VisiblePosts()
	if all {
		posts = sess.Posts()
	}
	return c.JSON(postResponses(sess, posts))
}

// CreatePost handles POST /api/sessions/:id/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	sess := currentSession(c)

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if err := requireText(c, req.Content, "content"); err != nil {
		return nil
	}
	if err := requireActingUser(c, sess); err != nil {
		return nil
	}

	post, ok := sess.CreatePost(req.Content)
	if !ok {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("Post was not created"))
	}
	return c.Status(fiber.StatusCreated).JSON(postResponses(sess, []*models.Post{post})[0])
}

// ToggleLike handles POST /api/sessions/:id/posts/:postId/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	sess := currentSession(c)
	postID := c.Params("postId")

	if err := requireActingUser(c, sess); err != nil {
		return nil
	}

	post, ok := sess.ToggleLike(postID)
	if !ok {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("Post", postID))
	}
	return c.JSON(postResponses(sess, []*models.Post{post})[0])
}

// AddComment handles POST /api/sessions/:id/posts/:postId/comments
func (s *Server) AddComment(c *fiber.Ctx) error {
	sess := currentSession(c)
	postID := c.Params("postId")

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if err := requireText(c, req.Text, "text"); err != nil {
		return nil
	}
	if err := requireActingUser(c, sess); err != nil {
		return nil
	}

	comment, ok := sess.AddComment(postID, req.Text)
	if !ok {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("Post", postID))
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}
