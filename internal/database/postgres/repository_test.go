package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/tinylink/tinylink/internal/database"
	"github.com/tinylink/tinylink/internal/models"
)

var errUnknown = errors.New("unknown error")

var urlColumns = []string{
	"short_code", "original_url", "title", "description", "is_custom",
	"is_active", "expires_at", "click_count", "creator_ip",
	"creator_user_agent", "created_at", "updated_at",
}

func urlRow(rows *sqlmock.Rows, code, originalURL string, clicks int64) *sqlmock.Rows {
	return rows.AddRow(code, originalURL, nil, nil, false, true, nil, clicks, nil, nil, time.Time{}, time.Time{})
}

func setupURLRepository(t testing.TB) (*URLRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewURLRepository(db)

	t.Cleanup(func() {
		mockDB.Close()
		db.Close()
	})

	return repo, mock
}

func TestURLRepository_Create(t *testing.T) {
	newURL := &models.URL{
		ShortCode:   "code1",
		OriginalURL: "https://example.com",
		IsActive:    true,
	}

	t.Run("short code exists", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`INSERT INTO urls`).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode})

		url, err := repo.Create(context.TODO(), newURL)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrShortCodeExists)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`INSERT INTO urls`).
			WillReturnError(errUnknown)

		url, err := repo.Create(context.TODO(), newURL)

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		rows := urlRow(sqlmock.NewRows(urlColumns), "code1", "https://example.com", 0)

		mock.ExpectQuery(`INSERT INTO urls`).
			WillReturnRows(rows)

		url, err := repo.Create(context.TODO(), newURL)

		assert.NoError(t, err)
		assert.NotNil(t, url)
		assert.Equal(t, "code1", url.ShortCode)
		assert.Equal(t, "https://example.com", url.OriginalURL)
		assert.True(t, url.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_CodeExists(t *testing.T) {
	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT COUNT`).
			WithArgs("code1").
			WillReturnError(errUnknown)

		exists, err := repo.CodeExists(context.TODO(), "code1")

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.False(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("taken", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT COUNT`).
			WithArgs("code1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		exists, err := repo.CodeExists(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("free", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT COUNT`).
			WithArgs("code1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		exists, err := repo.CodeExists(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.False(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_GetByShortCode(t *testing.T) {
	t.Run("url not found", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs("code2").
			WillReturnError(sql.ErrNoRows)

		url, err := repo.GetByShortCode(context.TODO(), "code2")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrURLNotFound)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		rows := urlRow(sqlmock.NewRows(urlColumns), "code1", "https://example.com", 3)

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs("code1").
			WillReturnRows(rows)

		url, err := repo.GetByShortCode(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.NotNil(t, url)
		assert.Equal(t, int64(3), url.ClickCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_IncrementClicks(t *testing.T) {
	t.Run("url not found", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectExec(`UPDATE urls`).
			WithArgs("code2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.IncrementClicks(context.TODO(), "code2")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrURLNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectExec(`UPDATE urls`).
			WithArgs("code1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.IncrementClicks(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_AddClicks(t *testing.T) {
	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectExec(`UPDATE urls`).
			WithArgs("code1", int64(3)).
			WillReturnError(errUnknown)

		err := repo.AddClicks(context.TODO(), "code1", 3)

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectExec(`UPDATE urls`).
			WithArgs("code1", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.AddClicks(context.TODO(), "code1", 3)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_Update(t *testing.T) {
	title := "new title"

	t.Run("url not found", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`UPDATE urls`).
			WillReturnError(sql.ErrNoRows)

		url, err := repo.Update(context.TODO(), "code2", database.UpdateURLParams{Title: &title})

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrURLNotFound)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no fields falls back to get", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		rows := urlRow(sqlmock.NewRows(urlColumns), "code1", "https://example.com", 0)

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs("code1").
			WillReturnRows(rows)

		url, err := repo.Update(context.TODO(), "code1", database.UpdateURLParams{})

		assert.NoError(t, err)
		assert.NotNil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		rows := sqlmock.NewRows(urlColumns).
			AddRow("code1", "https://example.com", title, nil, false, true, nil, 0, nil, nil, time.Time{}, time.Time{})

		mock.ExpectQuery(`UPDATE urls`).
			WillReturnRows(rows)

		url, err := repo.Update(context.TODO(), "code1", database.UpdateURLParams{Title: &title})

		assert.NoError(t, err)
		assert.NotNil(t, url)
		assert.Equal(t, title, url.Title)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_Delete(t *testing.T) {
	t.Run("url not found", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectExec(`DELETE FROM urls`).
			WithArgs("code2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.TODO(), "code2")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrURLNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectExec(`DELETE FROM urls`).
			WithArgs("code1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Delete(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_List(t *testing.T) {
	t.Run("count error", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT COUNT`).
			WillReturnError(errUnknown)

		urls, total, err := repo.List(context.TODO(), database.ListURLsParams{Limit: 10})

		assert.Error(t, err)
		assert.Nil(t, urls)
		assert.Zero(t, total)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success with filters", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		active := true

		mock.ExpectQuery(`SELECT COUNT`).
			WithArgs(active).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		rows := sqlmock.NewRows(urlColumns)
		urlRow(rows, "code1", "https://example.com", 5)
		urlRow(rows, "code2", "https://example.org", 1)

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs(active, 10, 0).
			WillReturnRows(rows)

		urls, total, err := repo.List(context.TODO(), database.ListURLsParams{
			Limit:    10,
			IsActive: &active,
			SortBy:   "click_count",
		})

		assert.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, urls, 2)
		assert.Equal(t, "code1", urls[0].ShortCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_InsertEvents(t *testing.T) {
	t.Run("empty batch is a no-op", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		err := repo.InsertEvents(context.TODO(), nil)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectExec(`INSERT INTO url_clicks`).
			WillReturnResult(sqlmock.NewResult(0, 2))

		events := []models.AccessEvent{
			{ShortCode: "code1", VisitorIP: "203.0.113.10", CreatedAt: time.Now()},
			{ShortCode: "code1", VisitorIP: "203.0.113.11", CreatedAt: time.Now()},
		}

		err := repo.InsertEvents(context.TODO(), events)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_EventsByShortCode(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		rows := sqlmock.NewRows([]string{"id", "short_code", "visitor_ip", "user_agent", "referrer", "country", "city", "created_at"}).
			AddRow(1, "code1", "203.0.113.10", "curl/8.0", nil, nil, nil, time.Time{})

		mock.ExpectQuery(`SELECT \* FROM url_clicks`).
			WithArgs("code1", 10).
			WillReturnRows(rows)

		events, err := repo.EventsByShortCode(context.TODO(), "code1", 10)

		assert.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, "203.0.113.10", events[0].VisitorIP)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
