package models

import "time"

// Commit is one entry of the append-only document log. The ID is the
// content hash of tree + metadata; Parent is empty for the root commit.
type Commit struct {
	ID          string    `json:"id"`
	Parent      string    `json:"parent,omitempty"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	Message     string    `json:"message"`
	Time        time.Time `json:"time"`
}
