package cache

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/querymind/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.CacheEntryModel{}, &models.QueryEventModel{}))
	return db
}

func TestStorePutAndGet(t *testing.T) {
	store := NewStore(newTestDB(t), false)

	fp := Fingerprint("what is rag")
	sources := []models.Source{{Title: "doc", Type: models.SourceRetrieval}}
	require.NoError(t, store.Put(fp, "what is rag", "an answer", sources, time.Hour, false))

	entry, err := store.Get(fp)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "an answer", entry.Answer)
	assert.Equal(t, int64(1), entry.HitCount)
	require.NotNil(t, entry.LastHitAt)
	require.Len(t, entry.Sources, 1)
	assert.Equal(t, models.SourceRetrieval, entry.Sources[0].Type)

	entry, err = store.Get(fp)
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.HitCount)
}

func TestStoreGetMiss(t *testing.T) {
	store := NewStore(newTestDB(t), false)

	entry, err := store.Get(Fingerprint("never asked"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStoreGetExpiredStillReturned(t *testing.T) {
	store := NewStore(newTestDB(t), false)

	fp := Fingerprint("stale question")
	require.NoError(t, store.Put(fp, "stale question", "old answer", nil, -time.Hour, false))

	entry, err := store.Get(fp)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.TTLExpiresAt.Before(time.Now()))
	assert.Equal(t, int64(1), entry.HitCount)
}

func TestStorePeekDoesNotCountHit(t *testing.T) {
	store := NewStore(newTestDB(t), false)

	fp := Fingerprint("peek me")
	require.NoError(t, store.Put(fp, "peek me", "answer", nil, time.Hour, false))

	entry, err := store.Peek(fp)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(0), entry.HitCount)
	assert.Nil(t, entry.LastHitAt)
}

func TestStorePutRegeneratePreservesHits(t *testing.T) {
	store := NewStore(newTestDB(t), false)

	fp := Fingerprint("popular question")
	require.NoError(t, store.Put(fp, "popular question", "v1", nil, time.Hour, false))

	for i := 0; i < 3; i++ {
		_, err := store.Get(fp)
		require.NoError(t, err)
	}

	require.NoError(t, store.Put(fp, "popular question", "v2", nil, time.Hour, false))

	entry, err := store.Peek(fp)
	require.NoError(t, err)
	assert.Equal(t, "v2", entry.Answer)
	assert.Equal(t, int64(3), entry.HitCount)
}

func TestStorePutRegenerateResetsHitsWhenConfigured(t *testing.T) {
	store := NewStore(newTestDB(t), true)

	fp := Fingerprint("reset question")
	require.NoError(t, store.Put(fp, "reset question", "v1", nil, time.Hour, false))
	_, err := store.Get(fp)
	require.NoError(t, err)

	require.NoError(t, store.Put(fp, "reset question", "v2", nil, time.Hour, false))

	entry, err := store.Peek(fp)
	require.NoError(t, err)
	assert.Equal(t, "v2", entry.Answer)
	assert.Equal(t, int64(0), entry.HitCount)
	assert.Nil(t, entry.LastHitAt)
}

func TestStoreDeleteStaleRequiresBothConditions(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db, false)

	old := time.Now().AddDate(0, 0, -40)

	seed := func(fp string, hits int64, createdAt time.Time) {
		entry := models.CacheEntryModel{
			Fingerprint:  fp,
			QueryText:    fp,
			Answer:       "a",
			HitCount:     hits,
			TTLExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, db.Create(&entry).Error)
		require.NoError(t, db.Model(&models.CacheEntryModel{}).
			Where("fingerprint = ?", fp).
			UpdateColumn("created_at", createdAt).Error)
	}

	seed("old-cold", 0, old)             // old AND cold: deleted
	seed("old-popular", 5, old)          // old but popular: kept
	seed("fresh-cold", 0, time.Now())    // cold but fresh: kept

	deleted, _, err := store.DeleteStale(30, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := store.Peek("old-cold")
	require.NoError(t, err)
	assert.Nil(t, remaining)
	for _, fp := range []string{"old-popular", "fresh-cold"} {
		entry, err := store.Peek(fp)
		require.NoError(t, err)
		assert.NotNil(t, entry, fp)
	}
}

func TestStoreDeleteStaleUsesLastHitOverCreated(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db, false)

	fp := Fingerprint("recently hit")
	require.NoError(t, store.Put(fp, "recently hit", "a", nil, time.Hour, false))
	require.NoError(t, db.Model(&models.CacheEntryModel{}).
		Where("fingerprint = ?", fp).
		UpdateColumn("created_at", time.Now().AddDate(0, 0, -60)).Error)

	// a fresh hit stamps last_hit_at, shielding the old entry
	_, err := store.Get(fp)
	require.NoError(t, err)

	deleted, _, err := store.DeleteStale(30, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestStoreExtendTTL(t *testing.T) {
	store := NewStore(newTestDB(t), false)

	fp := Fingerprint("good answer")
	require.NoError(t, store.Put(fp, "good answer", "a", nil, time.Hour, false))

	before, err := store.Peek(fp)
	require.NoError(t, err)

	found, err := store.ExtendTTL(fp, 72*time.Hour)
	require.NoError(t, err)
	assert.True(t, found)

	after, err := store.Peek(fp)
	require.NoError(t, err)
	assert.True(t, after.TTLExpiresAt.After(before.TTLExpiresAt))
	assert.True(t, after.QualityBoost)

	found, err = store.ExtendTTL(Fingerprint("not cached"), time.Hour)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreStats(t *testing.T) {
	store := NewStore(newTestDB(t), false)

	require.NoError(t, store.Put(Fingerprint("q1"), "q1", "a", nil, time.Hour, false))
	require.NoError(t, store.Put(Fingerprint("q2"), "q2", "a", nil, -time.Hour, false))

	_, err := store.Get(Fingerprint("q1"))
	require.NoError(t, err)
	_, err = store.Get(Fingerprint("q1"))
	require.NoError(t, err)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, int64(2), stats.TotalHits)
	assert.Equal(t, int64(1), stats.ExpiredEntries)
}
