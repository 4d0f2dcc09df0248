// Package models contains data structures for the application's domain models.
package models

// User represents a member of the simulated feed.
// Users are created once by the bootstrap load and never edited.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}
