package cache

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/querymind/core/internal/models"
	"gorm.io/gorm"
)

// Store is the durable query cache keyed by fingerprint.
type Store struct {
	db *gorm.DB
	// resetHitsOnRegenerate controls whether a Put over an existing entry
	// zeroes the hit counter. Off by default: popularity belongs to the
	// query, not to any particular answer.
	resetHitsOnRegenerate bool
}

func NewStore(db *gorm.DB, resetHitsOnRegenerate bool) *Store {
	return &Store{db: db, resetHitsOnRegenerate: resetHitsOnRegenerate}
}

// Stats are live cache aggregates.
type Stats struct {
	TotalEntries   int64 `json:"total_entries"`
	TotalHits      int64 `json:"total_hits"`
	ExpiredEntries int64 `json:"expired_entries"`
}

// Get returns the entry for fingerprint and records the hit: hit_count is
// incremented atomically in SQL and last_hit_at stamped. Entries past
// ttl_expires_at are still returned as hits; staleness is a signal for the
// cleanup and improvement passes, not an exclusion. Returns (nil, nil) on miss.
func (s *Store) Get(fingerprint string) (*models.CacheEntryModel, error) {
	var entry models.CacheEntryModel
	err := s.db.Where("fingerprint = ?", fingerprint).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.Model(&models.CacheEntryModel{}).
		Where("fingerprint = ?", fingerprint).
		UpdateColumns(map[string]interface{}{
			"hit_count":   gorm.Expr("hit_count + 1"),
			"last_hit_at": now,
		}).Error
	if err != nil {
		return nil, err
	}

	entry.HitCount++
	entry.LastHitAt = &now
	return &entry, nil
}

// Peek returns the entry for fingerprint without recording a hit.
// Returns (nil, nil) on miss.
func (s *Store) Peek(fingerprint string) (*models.CacheEntryModel, error) {
	var entry models.CacheEntryModel
	err := s.db.Where("fingerprint = ?", fingerprint).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put upserts the answer for fingerprint. On creation the hit counter starts
// at zero; on regeneration the answer, created_at and ttl_expires_at are
// replaced while hit_count follows the configured policy. Concurrent writers
// resolve last-writer-wins.
func (s *Store) Put(fingerprint, queryText, answer string, sources []models.Source, ttl time.Duration, qualityBoost bool) error {
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.CacheEntryModel
		err := tx.Where("fingerprint = ?", fingerprint).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry := models.CacheEntryModel{
				Fingerprint:  fingerprint,
				QueryText:    queryText,
				Answer:       answer,
				Sources:      sources,
				TTLExpiresAt: now.Add(ttl),
				QualityBoost: qualityBoost,
			}
			return tx.Create(&entry).Error
		}
		if err != nil {
			return err
		}

		sourcesJSON, err := json.Marshal(sources)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"query_text":     queryText,
			"answer":         answer,
			"sources":        string(sourcesJSON),
			"created_at":     now,
			"ttl_expires_at": now.Add(ttl),
			"quality_boost":  qualityBoost,
		}
		if s.resetHitsOnRegenerate {
			updates["hit_count"] = 0
			updates["last_hit_at"] = nil
		}
		return tx.Model(&models.CacheEntryModel{}).
			Where("fingerprint = ?", fingerprint).
			Updates(updates).Error
	})
}

// DeleteStale removes entries that are both old and rarely hit: last activity
// (last_hit_at, falling back to created_at for never-hit entries) older than
// maxAgeDays AND hit_count <= minHitCount. Returns the deleted count and the
// cutoff used.
func (s *Store) DeleteStale(maxAgeDays, minHitCount int) (int64, time.Time, error) {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	res := s.db.
		Where("hit_count <= ? AND COALESCE(last_hit_at, created_at) < ?", minHitCount, cutoff).
		Delete(&models.CacheEntryModel{})
	return res.RowsAffected, cutoff, res.Error
}

// ExtendTTL marks the entry as quality-boosted and pushes ttl_expires_at out
// by extend (from now if already expired). Returns false when the fingerprint
// is not cached.
func (s *Store) ExtendTTL(fingerprint string, extend time.Duration) (bool, error) {
	entry, err := s.Peek(fingerprint)
	if err != nil || entry == nil {
		return false, err
	}

	base := entry.TTLExpiresAt
	if now := time.Now(); base.Before(now) {
		base = now
	}
	err = s.db.Model(&models.CacheEntryModel{}).
		Where("fingerprint = ?", fingerprint).
		UpdateColumns(map[string]interface{}{
			"ttl_expires_at": base.Add(extend),
			"quality_boost":  true,
		}).Error
	return err == nil, err
}

// Stats returns live cache aggregates. Side-effect free.
func (s *Store) Stats() (Stats, error) {
	var out Stats
	if err := s.db.Model(&models.CacheEntryModel{}).Count(&out.TotalEntries).Error; err != nil {
		return out, err
	}
	var hits struct{ Total *int64 }
	if err := s.db.Model(&models.CacheEntryModel{}).
		Select("SUM(hit_count) AS total").
		Scan(&hits).Error; err != nil {
		return out, err
	}
	if hits.Total != nil {
		out.TotalHits = *hits.Total
	}
	if err := s.db.Model(&models.CacheEntryModel{}).
		Where("ttl_expires_at < ?", time.Now()).
		Count(&out.ExpiredEntries).Error; err != nil {
		return out, err
	}
	return out, nil
}
