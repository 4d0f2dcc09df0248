package models

// LoadState is the observable state of a feed bootstrap.
type LoadState string

const (
	LoadPending LoadState = "pending"
	LoadReady   LoadState = "ready"
	LoadFailed  LoadState = "failed"
)

// LoadStatus describes the outcome of the bootstrap load. Message is only set
// when State is LoadFailed.
type LoadStatus struct {
	State   LoadState `json:"state"`
	Message string    `json:"message,omitempty"`
}

// FeedBundle is the normalized result of a bootstrap: the users in the order
// the generator returned them and the posts sorted newest first.
type FeedBundle struct {
	Users []User  `json:"users"`
	Posts []*Post `json:"posts"`
}

// ViewMode is the screen the consumer should show.
type ViewMode string

const (
	ViewFeed    ViewMode = "feed"
	ViewProfile ViewMode = "profile"
)

// ViewChange is emitted when the selected author changes.
// ScrollToTop is always set; consumers reset their scroll position on it.
type ViewChange struct {
	Mode        ViewMode `json:"mode"`
	AuthorID    string   `json:"authorId,omitempty"`
	ScrollToTop bool     `json:"scrollToTop"`
}
