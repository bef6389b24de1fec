package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/querymind/core/internal/models"
	"github.com/querymind/core/internal/modules/cache"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when an analytics id is unknown.
	ErrNotFound = errors.New("analytics record not found")
	// ErrFeedbackExists is returned when feedback was already recorded.
	ErrFeedbackExists = errors.New("feedback already recorded")
)

// Service owns the append-only query ledger.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// LogInput describes one served query.
type LogInput struct {
	Query      string
	Response   string
	SourceType models.SourceType
	LatencyMS  *int // nil for pure cache hits
	UserID     string
}

// Log appends a ledger row and returns its id, the feedback handle handed
// back to the client. The append happens inline with the request so the
// handle is never lost.
func (s *Service) Log(in LogInput) (string, error) {
	st := in.SourceType
	if !st.Valid() {
		st = models.SourceUnknown
	}
	event := models.QueryEventModel{
		QueryText:      in.Query,
		NormalizedText: cache.Normalize(in.Query),
		ResponseText:   in.Response,
		SourceType:     st,
		LatencyMS:      in.LatencyMS,
		UserID:         in.UserID,
	}
	if err := s.db.Create(&event).Error; err != nil {
		return "", err
	}
	return event.ID, nil
}

// SubmitFeedback records a +1/-1 vote for a served query, at most once.
// The guard is a conditional UPDATE, so first-write-wins holds server-side
// even under concurrent submissions.
func (s *Service) SubmitFeedback(analyticsID string, value int) error {
	if value != 1 && value != -1 {
		return fmt.Errorf("feedback must be 1 or -1, got %d", value)
	}

	res := s.db.Model(&models.QueryEventModel{}).
		Where("id = ? AND feedback IS NULL", analyticsID).
		UpdateColumn("feedback", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := s.db.Model(&models.QueryEventModel{}).
		Where("id = ?", analyticsID).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrFeedbackExists
}

// PopularQuery is one entry of the popularity ranking.
type PopularQuery struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type popularRow struct {
	Query string
	Count int64
}

// Popular groups ledger rows by normalized query over the trailing window,
// keeps groups seen at least minCount times, and orders by count descending
// with most-recent occurrence breaking ties. Deterministic for an unchanged
// ledger.
func (s *Service) Popular(windowDays, minCount, limit int) ([]PopularQuery, error) {
	since := time.Now().AddDate(0, 0, -windowDays)
	var rows []popularRow
	err := s.db.Model(&models.QueryEventModel{}).
		Select("normalized_text AS query, COUNT(*) AS count, MAX(created_at) AS latest").
		Where("created_at >= ?", since).
		Group("normalized_text").
		Having("COUNT(*) >= ?", minCount).
		Order("count DESC, latest DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]PopularQuery, 0, len(rows))
	for _, r := range rows {
		out = append(out, PopularQuery{Query: r.Query, Count: r.Count})
	}
	return out, nil
}

// Candidate is a query flagged for answer regeneration.
type Candidate struct {
	Query         string `json:"query"`
	TotalCount    int64  `json:"total_count"`
	NegativeCount int64  `json:"negative_count"`
	PositiveCount int64  `json:"positive_count"`
}

// ImprovementCandidates returns queries whose feedback skews negative,
// across all time: strictly more negative than positive votes, or at least
// minNegative negatives with no positive ever recorded. Ordered by negative
// count descending.
func (s *Service) ImprovementCandidates(minNegative int) ([]Candidate, error) {
	if minNegative < 1 {
		minNegative = 1
	}
	var rows []Candidate
	err := s.db.Model(&models.QueryEventModel{}).
		Select(`normalized_text AS query,
			COUNT(*) AS total_count,
			SUM(CASE WHEN feedback = -1 THEN 1 ELSE 0 END) AS negative_count,
			SUM(CASE WHEN feedback = 1 THEN 1 ELSE 0 END) AS positive_count`).
		Group("normalized_text").
		Having("SUM(CASE WHEN feedback = -1 THEN 1 ELSE 0 END) > SUM(CASE WHEN feedback = 1 THEN 1 ELSE 0 END) "+
			"OR (SUM(CASE WHEN feedback = -1 THEN 1 ELSE 0 END) >= ? AND SUM(CASE WHEN feedback = 1 THEN 1 ELSE 0 END) = 0)", minNegative).
		Order("negative_count DESC").
		Scan(&rows).Error
	return rows, err
}

// PositiveQueries returns normalized queries with at least minPositive
// positive votes and no negative ones, used for the quality TTL extension.
func (s *Service) PositiveQueries(minPositive int) ([]string, error) {
	if minPositive < 1 {
		minPositive = 1
	}
	var out []string
	err := s.db.Model(&models.QueryEventModel{}).
		Select("normalized_text").
		Group("normalized_text").
		Having("SUM(CASE WHEN feedback = 1 THEN 1 ELSE 0 END) >= ? AND SUM(CASE WHEN feedback = -1 THEN 1 ELSE 0 END) = 0", minPositive).
		Pluck("normalized_text", &out).Error
	return out, err
}

// SourceCount is the per-source share of served queries.
type SourceCount struct {
	SourceType models.SourceType `json:"source_type"`
	Count      int64             `json:"count"`
}

// Summary aggregates ledger activity over the trailing window.
type Summary struct {
	Days             int           `json:"days"`
	TotalQueries     int64         `json:"total_queries"`
	CacheHits        int64         `json:"cache_hits"`
	CacheHitRate     float64       `json:"cache_hit_rate"`
	PositiveFeedback int64         `json:"positive_feedback"`
	NegativeFeedback int64         `json:"negative_feedback"`
	AvgLatencyMS     *float64      `json:"avg_latency_ms"`
	Sources          []SourceCount `json:"sources"`
}

// Summarize computes the dashboard summary for the trailing window.
func (s *Service) Summarize(days int) (*Summary, error) {
	if days < 1 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)
	base := func() *gorm.DB {
		return s.db.Model(&models.QueryEventModel{}).Where("created_at >= ?", since)
	}

	out := &Summary{Days: days}
	if err := base().Count(&out.TotalQueries).Error; err != nil {
		return nil, err
	}
	if err := base().Where("source_type = ?", models.SourceCache).Count(&out.CacheHits).Error; err != nil {
		return nil, err
	}
	if out.TotalQueries > 0 {
		out.CacheHitRate = float64(out.CacheHits) / float64(out.TotalQueries)
	}
	if err := base().Where("feedback = ?", 1).Count(&out.PositiveFeedback).Error; err != nil {
		return nil, err
	}
	if err := base().Where("feedback = ?", -1).Count(&out.NegativeFeedback).Error; err != nil {
		return nil, err
	}

	var avg struct{ Avg *float64 }
	if err := base().
		Select("AVG(latency_ms) AS avg").
		Where("latency_ms IS NOT NULL").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	out.AvgLatencyMS = avg.Avg

	if err := base().
		Select("source_type, COUNT(*) AS count").
		Group("source_type").
		Order("count DESC").
		Scan(&out.Sources).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Recent returns the latest ledger rows, newest first.
func (s *Service) Recent(limit int) ([]models.QueryEventModel, error) {
	if limit < 1 {
		limit = 10
	}
	var rows []models.QueryEventModel
	err := s.db.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
