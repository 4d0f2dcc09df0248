package server

import (
	"context"
	"errors"
	"log/slog"

	"novafeed/internal/feed"
	"novafeed/internal/models"
	"novafeed/internal/observability"
	"novafeed/internal/session"

	"github.com/gofiber/fiber/v2"
)

// SessionResponse is the consumer view of a feed session.
type SessionResponse struct {
	ID          string            `json:"id"`
	Status      models.LoadStatus `json:"status"`
	CurrentUser *models.User      `json:"currentUser"`
	View        models.ViewChange `json:"view"`
	Version     uint64            `json:"version"`
}

func sessionResponse(sess *feed.Session) SessionResponse {
	resp := SessionResponse{
		ID:      sess.ID(),
		Status:  sess.Status(),
		View:    sess.View(),
		Version: sess.Version(),
	}
	if u, ok := sess.CurrentUser(); ok {
		resp.CurrentUser = &u
	}
	return resp
}

// CreateSession handles POST /api/sessions. The bootstrap starts immediately;
// ?wait=true holds the response until it finishes.
func (s *Server) CreateSession(c *fiber.Ctx) error {
	sess, err := s.sessions.Create()
	if err != nil {
		if errors.Is(err, session.ErrLimitReached) {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				models.NewConflictError("Too many active sessions, please try again later"))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	ctx := observability.WithSessionID(c.UserContext(), sess.ID())
	observability.Logger.InfoContext(ctx, "session created")

	return s.startBootstrap(c, sess)
}

// GetSession handles GET /api/sessions/:id
func (s *Server) GetSession(c *fiber.Ctx) error {
	return c.JSON(sessionResponse(currentSession(c)))
}

// DeleteSession handles DELETE /api/sessions/:id
func (s *Server) DeleteSession(c *fiber.Ctx) error {
	sess := currentSession(c)
	s.sessions.Delete(sess.ID())
	observability.Logger.InfoContext(c.UserContext(), "session deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

// Bootstrap handles POST /api/sessions/:id/bootstrap, the manual retry after
// a failed load.
func (s *Server) Bootstrap(c *fiber.Ctx) error {
	return s.startBootstrap(c, currentSession(c))
}

func (s *Server) startBootstrap(c *fiber.Ctx, sess *feed.Session) error {
	// The load outlives the request; keep its values but not its deadline.
	done, err := sess.Start(context.WithoutCancel(c.UserContext()))
	switch {
	case errors.Is(err, feed.ErrAlreadyLoaded):
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("Feed is already loaded"))
	case errors.Is(err, feed.ErrLoadInProgress):
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("Feed is already loading"))
	case err != nil:
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	status := fiber.StatusAccepted
	if c.QueryBool("wait") {
		select {
		case <-done:
			status = fiber.StatusOK
		case <-c.UserContext().Done():
			observability.Logger.WarnContext(c.UserContext(), "client stopped waiting for bootstrap",
				slog.String("session_id", sess.ID()),
			)
		}
	}

	return c.Status(status).JSON(sessionResponse(sess))
}

// SelectAuthor handles PUT /api/sessions/:id/selection. An empty authorId
// returns to the full feed.
func (s *Server) SelectAuthor(c *fiber.Ctx) error {
	sess := currentSession(c)

	var req struct {
		AuthorID string `json:"authorId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	change, err := sess.SelectAuthor(req.AuthorID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound, err)
	}
	return c.JSON(change)
}
