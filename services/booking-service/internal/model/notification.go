package model

import "time"

type Notification struct {
	ID         string
	ProviderID string
	Content    string
	Read       bool
	// DedupeKey makes repeated emissions for the same event collapse into one row.
	DedupeKey string
	CreatedAt time.Time
}
