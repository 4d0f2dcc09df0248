package server

import (
	"errors"
	"fmt"
	"strings"

	"novafeed/internal/feed"
	"novafeed/internal/models"
	"novafeed/internal/observability"

	"github.com/gofiber/fiber/v2"
)

const sessionLocal = "session"

// errResponseWritten signals that a helper already committed the response.
// Handlers return nil when they see it.
var errResponseWritten = errors.New("response already written")

// withSession resolves :id to a live session and tags the request context
// with it for logging.
func (s *Server) withSession(c *fiber.Ctx) error {
	id := c.Params("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("Session", id))
	}
	c.Locals(sessionLocal, sess)
	c.SetUserContext(observability.WithSessionID(c.UserContext(), sess.ID()))
	return c.Next()
}

func currentSession(c *fiber.Ctx) *feed.Session {
	sess, _ := c.Locals(sessionLocal).(*feed.Session)
	return sess
}

// requireActingUser rejects mutations the engine would treat as no-ops
// because the feed is not loaded or has no acting user.
func requireActingUser(c *fiber.Ctx, sess *feed.Session) error {
	if sess.Status().State != models.LoadReady {
		_ = models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("Feed is not ready yet"))
		return errResponseWritten
	}
	if _, ok := sess.CurrentUser(); !ok {
		_ = models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("Feed has no acting user"))
		return errResponseWritten
	}
	return nil
}

// requireText rejects a body field that is blank after trimming.
func requireText(c *fiber.Ctx, value, field string) error {
	if strings.TrimSpace(value) == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(field+" must not be empty"))
		return errResponseWritten
	}
	return nil
}

// notModified sets a weak ETag derived from the session version and reports
// whether the client already has this version.
func notModified(c *fiber.Ctx, sess *feed.Session, scope string) bool {
	etag := fmt.Sprintf(`W/"%s-%s-%d"`, sess.ID(), scope, sess.Version())
	c.Set(fiber.HeaderETag, etag)
	return c.Get(fiber.HeaderIfNoneMatch) == etag
}
