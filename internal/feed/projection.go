package feed

import (
	"novafeed/internal/models"
)

// Project returns the posts visible for a selection. An empty authorID
// selects everything and returns posts itself; otherwise the result is the
// order-preserving subsequence written by that author.
func Project(posts []*models.Post, authorID string) []*models.Post {
	if authorID == "" {
		return posts
	}
	out := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if p.AuthorID == authorID {
			out = append(out, p)
		}
	}
	return out
}

// SelectAuthor switches to the profile of userID, or back to the full feed
// when userID is empty. Unknown users are rejected and the selection is left
// as it was.
func (s *Session) SelectAuthor(userID string) (models.ViewChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID != "" && !s.hasUser(userID) {
		return models.ViewChange{}, models.NewNotFoundError("User", userID)
	}
	s.selected = userID
	return viewChange(userID), nil
}

// Selection returns the selected author ID, empty when none.
func (s *Session) Selection() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// View describes the current selection without the scroll signal.
func (s *Session) View() models.ViewChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := viewChange(s.selected)
	v.ScrollToTop = false
	return v
}

// VisiblePosts projects the current posts through the current selection.
func (s *Session) VisiblePosts() []*models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Project(s.posts, s.selected)
}

// UserPostCount counts the posts written by userID.
func (s *Session) UserPostCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.posts {
		if p.AuthorID == userID {
			n++
		}
	}
	return n
}

func (s *Session) hasUser(id string) bool {
	for _, u := range s.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func viewChange(authorID string) models.ViewChange {
	if authorID == "" {
		return models.ViewChange{Mode: models.ViewFeed, ScrollToTop: true}
	}
	return models.ViewChange{Mode: models.ViewProfile, AuthorID: authorID, ScrollToTop: true}
}
