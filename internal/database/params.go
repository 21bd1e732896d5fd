package database

import "time"

// UpdateURLParams describes a partial update; nil fields are left untouched.
type UpdateURLParams struct {
	Title       *string
	Description *string
	IsActive    *bool
	ExpiresAt   *time.Time
}

// ListURLsParams describes filtering, sorting and pagination for listing
// shortened URLs.
type ListURLsParams struct {
	Limit     int
	Offset    int
	IsActive  *bool
	IsExpired *bool
	SortBy    string
	SortOrder string
}
