package models

import "time"

// URL represents a shortened URL record and its associated metadata.
type URL struct {
	// ShortCode is the unique short token associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// Title is an optional human-readable title for the URL.
	Title string
	// Description is an optional free-form description.
	Description string
	// IsCustom reports whether the short code was supplied by the creator.
	IsCustom bool
	// IsActive reports whether the URL is enabled for redirects.
	IsActive bool
	// ExpiresAt is the optional expiration timestamp. A nil value means the
	// URL never expires.
	ExpiresAt *time.Time
	// ClickCount tracks the number of times the shortened URL has been accessed.
	ClickCount int64
	// CreatorIP is the IP address the URL was created from, if known.
	CreatorIP string
	// CreatorUserAgent is the user agent the URL was created with, if known.
	CreatorUserAgent string
	// CreatedAt is the timestamp indicating when the shortened URL was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp indicating when the shortened URL was last updated.
	UpdatedAt time.Time
}

// IsExpired reports whether the URL is expired at the given moment.
func (u *URL) IsExpired(now time.Time) bool {
	return u.ExpiresAt != nil && now.After(*u.ExpiresAt)
}

// IsAccessible reports whether the URL is eligible to serve redirects,
// i.e. active and not expired.
func (u *URL) IsAccessible(now time.Time) bool {
	return u.IsActive && !u.IsExpired(now)
}

// AccessEvent represents a single access to a shortened URL. Events are
// append-only and reference their URL by short code; they may outlive the
// record itself.
type AccessEvent struct {
	ID        int64
	ShortCode string
	VisitorIP string
	UserAgent string
	Referrer  string
	// Country and City hold derived geography when available.
	Country   string
	City      string
	CreatedAt time.Time
}
