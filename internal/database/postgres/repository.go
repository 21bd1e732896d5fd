package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tinylink/tinylink/internal/database"
	"github.com/tinylink/tinylink/internal/models"
)

type urlRecord struct {
	ShortCode        string         `db:"short_code"`
	OriginalURL      string         `db:"original_url"`
	Title            sql.NullString `db:"title"`
	Description      sql.NullString `db:"description"`
	IsCustom         bool           `db:"is_custom"`
	IsActive         bool           `db:"is_active"`
	ExpiresAt        sql.NullTime   `db:"expires_at"`
	ClickCount       int64          `db:"click_count"`
	CreatorIP        sql.NullString `db:"creator_ip"`
	CreatorUserAgent sql.NullString `db:"creator_user_agent"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *urlRecord) ToURL() *models.URL {
	url := &models.URL{
		ShortCode:        r.ShortCode,
		OriginalURL:      r.OriginalURL,
		Title:            r.Title.String,
		Description:      r.Description.String,
		IsCustom:         r.IsCustom,
		IsActive:         r.IsActive,
		ClickCount:       r.ClickCount,
		CreatorIP:        r.CreatorIP.String,
		CreatorUserAgent: r.CreatorUserAgent.String,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}

	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		url.ExpiresAt = &t
	}

	return url
}

type eventRecord struct {
	ID        int64          `db:"id"`
	ShortCode string         `db:"short_code"`
	VisitorIP sql.NullString `db:"visitor_ip"`
	UserAgent sql.NullString `db:"user_agent"`
	Referrer  sql.NullString `db:"referrer"`
	Country   sql.NullString `db:"country"`
	City      sql.NullString `db:"city"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r *eventRecord) ToAccessEvent() models.AccessEvent {
	return models.AccessEvent{
		ID:        r.ID,
		ShortCode: r.ShortCode,
		VisitorIP: r.VisitorIP.String,
		UserAgent: r.UserAgent.String,
		Referrer:  r.Referrer.String,
		Country:   r.Country.String,
		City:      r.City.String,
		CreatedAt: r.CreatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// URLRepository persists shortened URL records and their access events.
type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{
		db: db,
	}
}

// Create inserts a new URL record. The unique constraint on short_code is the
// authority on uniqueness: concurrent creations of the same code make the
// loser fail with database.ErrShortCodeExists.
func (r *URLRepository) Create(ctx context.Context, url *models.URL) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Create"

	rec := new(urlRecord)
	query := `INSERT INTO urls(short_code, original_url, title, description, is_custom, is_active, expires_at, creator_ip, creator_user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query,
		url.ShortCode, url.OriginalURL, nullString(url.Title), nullString(url.Description),
		url.IsCustom, url.IsActive, nullTime(url.ExpiresAt),
		nullString(url.CreatorIP), nullString(url.CreatorUserAgent))
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// CodeExists reports whether a short code is already taken. It serves as the
// uniqueness oracle for the code generator.
func (r *URLRepository) CodeExists(ctx context.Context, shortCode string) (bool, error) {
	const op = "database.postgres.URLRepository.CodeExists"

	var count int64
	query := `SELECT COUNT(short_code) FROM urls WHERE short_code = $1`

	if err := r.db.GetContext(ctx, &count, query, shortCode); err != nil {
		return false, fmt.Errorf("%s: failed to check short code: %w", op, err)
	}

	return count > 0, nil
}

// GetByShortCode retrieves a URL record without side effects.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByShortCode"

	rec := new(urlRecord)
	query := `SELECT * FROM urls WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// IncrementClicks bumps click_count atomically in the database, so concurrent
// clicks on the same code never lose updates.
func (r *URLRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	const op = "database.postgres.URLRepository.IncrementClicks"

	query := `UPDATE urls
		SET click_count = click_count + 1
		WHERE short_code = $1`

	res, err := r.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}

// AddClicks bumps click_count by n in a single atomic update. Used by the
// event recorder to fold a batch of tracked cache hits into one write.
func (r *URLRepository) AddClicks(ctx context.Context, shortCode string, n int64) error {
	const op = "database.postgres.URLRepository.AddClicks"

	query := `UPDATE urls
		SET click_count = click_count + $2
		WHERE short_code = $1`

	if _, err := r.db.ExecContext(ctx, query, shortCode, n); err != nil {
		return fmt.Errorf("%s: failed to add clicks: %w", op, err)
	}

	return nil
}

// Update applies a partial update to a URL record.
func (r *URLRepository) Update(ctx context.Context, shortCode string, params database.UpdateURLParams) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Update"

	sets := make([]string, 0, 5)
	args := make([]any, 0, 5)

	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Title != nil {
		appendSet("title", nullString(*params.Title))
	}
	if params.Description != nil {
		appendSet("description", nullString(*params.Description))
	}
	if params.IsActive != nil {
		appendSet("is_active", *params.IsActive)
	}
	if params.ExpiresAt != nil {
		appendSet("expires_at", *params.ExpiresAt)
	}

	if len(sets) == 0 {
		return r.GetByShortCode(ctx, shortCode)
	}

	appendSet("updated_at", time.Now().UTC())
	args = append(args, shortCode)

	query := fmt.Sprintf(`UPDATE urls SET %s WHERE short_code = $%d RETURNING *`,
		strings.Join(sets, ", "), len(args))

	rec := new(urlRecord)
	if err := r.db.GetContext(ctx, rec, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// Delete removes a URL record. Access events are retained as an audit log.
func (r *URLRepository) Delete(ctx context.Context, shortCode string) error {
	const op = "database.postgres.URLRepository.Delete"

	res, err := r.db.ExecContext(ctx, `DELETE FROM urls WHERE short_code = $1`, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to delete url record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}

var sortColumns = map[string]string{
	"created_at":  "created_at",
	"click_count": "click_count",
	"expires_at":  "expires_at",
}

// List returns a page of URL records plus the total number of records
// matching the filters.
func (r *URLRepository) List(ctx context.Context, params database.ListURLsParams) ([]models.URL, int64, error) {
	const op = "database.postgres.URLRepository.List"

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)

	if params.IsActive != nil {
		args = append(args, *params.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if params.IsExpired != nil {
		if *params.IsExpired {
			where = append(where, "(expires_at IS NOT NULL AND expires_at <= now())")
		} else {
			where = append(where, "(expires_at IS NULL OR expires_at > now())")
		}
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	countQuery := `SELECT COUNT(short_code) FROM urls` + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("%s: failed to count url records: %w", op, err)
	}

	sortBy, ok := sortColumns[params.SortBy]
	if !ok {
		sortBy = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(params.SortOrder, "asc") {
		order = "ASC"
	}

	args = append(args, params.Limit)
	limitPos := len(args)
	args = append(args, params.Offset)
	offsetPos := len(args)

	query := fmt.Sprintf(`SELECT * FROM urls%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		whereClause, sortBy, order, limitPos, offsetPos)

	var recs []urlRecord
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("%s: failed to list url records: %w", op, err)
	}

	urls := make([]models.URL, len(recs))
	for i := range recs {
		urls[i] = *recs[i].ToURL()
	}

	return urls, total, nil
}

// InsertEvents appends a batch of access events in a single statement.
func (r *URLRepository) InsertEvents(ctx context.Context, events []models.AccessEvent) error {
	const op = "database.postgres.URLRepository.InsertEvents"

	if len(events) == 0 {
		return nil
	}

	recs := make([]eventRecord, len(events))
	for i, ev := range events {
		recs[i] = eventRecord{
			ShortCode: ev.ShortCode,
			VisitorIP: nullString(ev.VisitorIP),
			UserAgent: nullString(ev.UserAgent),
			Referrer:  nullString(ev.Referrer),
			Country:   nullString(ev.Country),
			City:      nullString(ev.City),
			CreatedAt: ev.CreatedAt,
		}
	}

	query := `INSERT INTO url_clicks(short_code, visitor_ip, user_agent, referrer, country, city, created_at)
		VALUES (:short_code, :visitor_ip, :user_agent, :referrer, :country, :city, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, recs); err != nil {
		return fmt.Errorf("%s: failed to insert access events: %w", op, err)
	}

	return nil
}

// EventsByShortCode returns the most recent access events for a code.
func (r *URLRepository) EventsByShortCode(ctx context.Context, shortCode string, limit int) ([]models.AccessEvent, error) {
	const op = "database.postgres.URLRepository.EventsByShortCode"

	query := `SELECT * FROM url_clicks
		WHERE short_code = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var recs []eventRecord
	if err := r.db.SelectContext(ctx, &recs, query, shortCode, limit); err != nil {
		return nil, fmt.Errorf("%s: failed to list access events: %w", op, err)
	}

	events := make([]models.AccessEvent, len(recs))
	for i := range recs {
		events[i] = recs[i].ToAccessEvent()
	}

	return events, nil
}
