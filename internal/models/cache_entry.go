package models

import "time"

// SourceType is the closed set of answer source attributions.
type SourceType string

const (
	SourceRetrieval   SourceType = "retrieval"
	SourceArxiv       SourceType = "arxiv"
	SourceHuggingFace SourceType = "huggingface"
	SourceCache       SourceType = "cache"
	SourceHybrid      SourceType = "hybrid"
	SourceUnknown     SourceType = "unknown"
)

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceRetrieval, SourceArxiv, SourceHuggingFace, SourceCache, SourceHybrid, SourceUnknown:
		return true
	default:
		return false
	}
}

// Source is a single source attribution attached to an answer.
type Source struct {
	Title string     `json:"title"`
	URL   string     `json:"url,omitempty"`
	Type  SourceType `json:"source_type"`
	Score *float64   `json:"relevance_score,omitempty"` // relevance in [0,1]
}

// CacheEntryModel is one cached answer, keyed by the query fingerprint.
// At most one row exists per fingerprint; regeneration overwrites in place.
type CacheEntryModel struct {
	Base
	Fingerprint  string     `json:"fingerprint"    gorm:"type:char(32);uniqueIndex;not null"`
	QueryText    string     `json:"query_text"     gorm:"type:text"`
	Answer       string     `json:"answer"         gorm:"type:longtext"`
	Sources      []Source   `json:"sources"        gorm:"type:longtext;serializer:json"`
	HitCount     int64      `json:"hit_count"      gorm:"not null;default:0"`
	LastHitAt    *time.Time `json:"last_hit_at"`
	TTLExpiresAt time.Time  `json:"ttl_expires_at"`
	QualityBoost bool       `json:"quality_boost"`
}

func (CacheEntryModel) TableName() string { return "query_cache" }
