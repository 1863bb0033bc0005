package statistics

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kompanion/kompanion/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	dbPath := "./test_statistics_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.ReadingStatistic{})
	require.NoError(t, err)

	repo := NewRepository(db)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, cleanup
}

func uintPtr(v uint) *uint { return &v }

func TestRepository_Upsert_CreatesRecord(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	stat, err := repo.Upsert(&entities.ReadingStatistic{
		UserID:           uintPtr(1),
		BookTitle:        "Dune",
		TotalReadSeconds: 3600,
		ProgressPercent:  42.0,
		WebDAVPath:       "statistics/dune.json",
	})

	require.NoError(t, err)
	assert.NotZero(t, stat.ID)
}

func TestRepository_Upsert_UpdatesByWebDAVPath(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	first, err := repo.Upsert(&entities.ReadingStatistic{
		UserID:          uintPtr(1),
		BookTitle:       "Dune",
		ProgressPercent: 42.0,
		WebDAVPath:      "statistics/dune.json",
	})
	require.NoError(t, err)

	second, err := repo.Upsert(&entities.ReadingStatistic{
		UserID:          uintPtr(1),
		BookTitle:       "Dune",
		ProgressPercent: 73.5,
		WebDAVPath:      "statistics/dune.json",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	stored, err := repo.GetByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, 73.5, stored.ProgressPercent)
}

func TestRepository_Upsert_WithoutPathAlwaysCreates(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	a, err := repo.Upsert(&entities.ReadingStatistic{BookTitle: "Dune"})
	require.NoError(t, err)
	b, err := repo.Upsert(&entities.ReadingStatistic{BookTitle: "Dune"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestRepository_List_Filters(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	for i, rec := range []entities.ReadingStatistic{
		{UserID: uintPtr(1), BookTitle: "Dune", DeviceName: "kindle-pw5"},
		{UserID: uintPtr(1), BookTitle: "Neuromancer", DeviceName: "boox-poke"},
		{UserID: uintPtr(2), BookTitle: "Dune Messiah", DeviceName: "kindle-pw5"},
	} {
		r := rec
		r.WebDAVPath = "statistics/" + r.BookTitle + ".json"
		_, err := repo.Upsert(&r)
		require.NoError(t, err, "record %d", i)
	}

	records, total, err := repo.List(ListOptions{UserID: uintPtr(1), Device: "kindle"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "Dune", records[0].BookTitle)

	records, total, err = repo.List(ListOptions{UserID: uintPtr(1), Title: "neuro"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "Neuromancer", records[0].BookTitle)

	// nil UserID spans all users
	_, total, err = repo.List(ListOptions{Title: "dune"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestRepository_List_FilterAppliesBeforePagination(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	for _, title := range []string{"Alpha", "Beta", "Gamma", "Delta"} {
		_, err := repo.Upsert(&entities.ReadingStatistic{
			UserID:     uintPtr(1),
			BookTitle:  title,
			DeviceName: "kindle-pw5",
			WebDAVPath: "statistics/" + title + ".json",
		})
		require.NoError(t, err)
	}

	records, total, err := repo.List(ListOptions{
		UserID: uintPtr(1), Device: "kindle", Limit: 2, Offset: 2,
	})

	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, records, 2)
}

func TestRepository_GetSummaryForUser(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.Upsert(&entities.ReadingStatistic{
		UserID: uintPtr(1), BookTitle: "Dune",
		TotalReadSeconds: 3600, ReadPages: 120, ProgressPercent: 100,
		WebDAVPath: "statistics/dune.json",
	})
	require.NoError(t, err)
	_, err = repo.Upsert(&entities.ReadingStatistic{
		UserID: uintPtr(1), BookTitle: "Neuromancer",
		TotalReadSeconds: 1800, ReadPages: 40, ProgressPercent: 25,
		WebDAVPath: "statistics/neuromancer.json",
	})
	require.NoError(t, err)
	_, err = repo.Upsert(&entities.ReadingStatistic{
		UserID: uintPtr(2), BookTitle: "Hyperion",
		TotalReadSeconds: 9999, ReadPages: 300, ProgressPercent: 100,
		WebDAVPath: "statistics/hyperion.json",
	})
	require.NoError(t, err)

	summary, err := repo.GetSummaryForUser(1)

	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.TotalBooks)
	assert.EqualValues(t, 1, summary.FinishedBooks)
	assert.EqualValues(t, 5400, summary.TotalReadSeconds)
	assert.EqualValues(t, 160, summary.TotalReadPages)
}

func TestRepository_DeleteOlderThan(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	old, err := repo.Upsert(&entities.ReadingStatistic{
		BookTitle: "Old", WebDAVPath: "statistics/old.json",
	})
	require.NoError(t, err)
	require.NoError(t, repo.db.Model(old).
		UpdateColumn("updated_at", time.Now().Add(-90*24*time.Hour)).Error)

	_, err = repo.Upsert(&entities.ReadingStatistic{
		BookTitle: "Fresh", WebDAVPath: "statistics/fresh.json",
	})
	require.NoError(t, err)

	removed, err := repo.DeleteOlderThan(time.Now().Add(-30 * 24 * time.Hour))

	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
