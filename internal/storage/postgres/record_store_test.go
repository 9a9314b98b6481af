package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/pagesnap/pagesnap/internal/snapshot"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newMockStore(t *testing.T) (*RecordStore, pgxmock.PgxPoolIface, *fixedClock) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	clk := &fixedClock{now: time.Unix(1_700_000_000, 0).UTC()}
	store, err := NewRecordStoreWithPool(mock, "snapshots", 7*24*time.Hour, clk)
	require.NoError(t, err)
	return store, mock, clk
}

func TestRecordStore_SaveInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock, clk := newMockStore(t)

	rec := snapshot.RenderRecord{
		ID:          "3f1c7a52-0000-4000-8000-000000000001",
		URL:         "https://example.com",
		Title:       "Example Domain",
		Description: "Illustrative example",
		Keywords:    "example,domain",
		ArtifactURL: "https://storage.googleapis.com/shots/abc.png",
		Width:       1200,
		Height:      800,
		FullPage:    false,
		CreatedAt:   clk.now,
	}

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs(
			rec.ID,
			rec.URL,
			rec.Title,
			rec.Description,
			rec.Keywords,
			rec.ArtifactURL,
			rec.Width,
			rec.Height,
			rec.FullPage,
			rec.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStore_SaveRequiresID(t *testing.T) {
	t.Parallel()

	store, _, _ := newMockStore(t)
	err := store.Save(context.Background(), snapshot.RenderRecord{URL: "https://example.com"})
	require.Error(t, err)
}

func TestRecordStore_FindFreshReturnsRecord(t *testing.T) {
	t.Parallel()

	store, mock, clk := newMockStore(t)
	key := snapshot.CacheKey{URL: "https://example.com", Width: 1200, Height: 800}
	created := clk.now.Add(-time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "url", "title", "description", "keywords",
		"artifact_url", "width", "height", "full_page", "created_at",
	}).AddRow(
		"rec-1", key.URL, "Example", "desc", "kw",
		"https://storage.googleapis.com/shots/abc.png", 1200, 800, false, created,
	)

	mock.ExpectQuery("SELECT id, url, title, description, keywords, artifact_url").
		WithArgs(key.URL, key.Width, key.Height, key.FullPage, clk.now.Add(-7*24*time.Hour)).
		WillReturnRows(rows)

	rec, err := store.FindFresh(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "rec-1", rec.ID)
	require.Equal(t, created, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStore_FindFreshMissReturnsNil(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)
	key := snapshot.CacheKey{URL: "https://example.com", Width: 1200, Height: 800}

	mock.ExpectQuery("SELECT id, url, title, description, keywords, artifact_url").
		WithArgs(key.URL, key.Width, key.Height, key.FullPage, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	rec, err := store.FindFresh(context.Background(), key)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStore_DeleteStaleCollectsArtifactURLs(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)

	rows := pgxmock.NewRows([]string{"artifact_url"}).
		AddRow(strPtr("https://storage.googleapis.com/shots/a.png")).
		AddRow((*string)(nil)).
		AddRow(strPtr("https://storage.googleapis.com/shots/b.png"))

	mock.ExpectQuery("WITH stale AS").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(rows)

	batch, err := store.DeleteStale(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, batch.Deleted)
	require.Equal(t, []string{
		"https://storage.googleapis.com/shots/a.png",
		"https://storage.googleapis.com/shots/b.png",
	}, batch.ArtifactURLs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreWithPool_Validation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	clk := &fixedClock{now: time.Now()}

	_, err = NewRecordStoreWithPool(nil, "snapshots", time.Hour, clk)
	require.Error(t, err)

	_, err = NewRecordStoreWithPool(mock, "bad;table", time.Hour, clk)
	require.Error(t, err)

	_, err = NewRecordStoreWithPool(mock, "snapshots", 0, clk)
	require.Error(t, err)

	_, err = NewRecordStoreWithPool(mock, "snapshots", time.Hour, nil)
	require.Error(t, err)
}

func strPtr(s string) *string { return &s }
