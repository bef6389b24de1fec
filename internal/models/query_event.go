package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QueryEventModel is the append-only ledger of served queries. Rows are never
// updated after creation except for the one-shot feedback column, and never
// soft-deleted. The row ID is the analytics handle returned to clients.
type QueryEventModel struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	CreatedAt      time.Time  `json:"created"         gorm:"index"`
	QueryText      string     `json:"query"           gorm:"type:text"`
	NormalizedText string     `json:"normalized_text" gorm:"type:varchar(191);index"`
	ResponseText   string     `json:"response,omitempty" gorm:"type:longtext"`
	SourceType     SourceType `json:"source_type"     gorm:"type:varchar(20)"`
	LatencyMS      *int       `json:"latency_ms"`
	Feedback       *int       `json:"feedback"` // +1 or -1, set at most once
	UserID         string     `json:"user_id,omitempty" gorm:"type:varchar(64)"`
}

func (QueryEventModel) TableName() string { return "query_events" }

func (e *QueryEventModel) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
