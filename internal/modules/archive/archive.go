// Package archive rolls old ledger rows out of the live database into S3.
// The ledger is append-only; archiving keeps the popularity and feedback
// selectors working over a bounded table.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appcfg "github.com/querymind/core/internal/config"
	"github.com/querymind/core/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	cfg    *appcfg.ArchiveSection
	logger *zap.Logger
}

func NewService(db *gorm.DB, cfg *appcfg.ArchiveSection, logger *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, logger: logger.Named("ArchiveService")}
}

// Result reports one archive run.
type Result struct {
	Archived int64     `json:"archived"`
	Cutoff   time.Time `json:"cutoff"`
	Object   string    `json:"object,omitempty"`
}

// Run snapshots ledger rows older than the retention window to S3 as one
// JSON object, then deletes them. Rows are only deleted after the upload
// succeeded; a failed upload leaves the ledger untouched.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if !s.cfg.Enabled {
		return nil, fmt.Errorf("archive is disabled")
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	res := &Result{Cutoff: cutoff}

	var rows []models.QueryEventModel
	if err := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return res, nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"archived_at": time.Now(),
		"cutoff":      cutoff,
		"count":       len(rows),
		"events":      rows,
	})
	if err != nil {
		return nil, err
	}

	uploader, err := newS3Uploader(s.cfg.S3)
	if err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("ledger/%s/events-%s.json",
		time.Now().UTC().Format("2006-01"),
		time.Now().UTC().Format("20060102T150405Z"))
	objectURL, err := uploader.Upload(ctx, objectKey, payload, "application/json")
	if err != nil {
		return nil, fmt.Errorf("upload archive: %w", err)
	}
	res.Object = objectURL

	del := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.QueryEventModel{})
	if del.Error != nil {
		return nil, fmt.Errorf("archive uploaded but prune failed: %w", del.Error)
	}
	res.Archived = del.RowsAffected

	s.logger.Info("ledger archived",
		zap.Int64("archived", res.Archived),
		zap.Time("cutoff", cutoff),
		zap.String("object", objectKey))
	return res, nil
}
