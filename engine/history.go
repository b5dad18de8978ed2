package engine

import (
	"context"
	"errors"

	"cadenceflow/models"

	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// HistoryPage is one page of an enrollment's history, newest first. Limit
// and Offset are the values actually used, after clamping.
type HistoryPage struct {
	Items    []models.HistoryEntry `json:"items"`
	Total    int64                 `json:"total"`
	HasOlder bool                  `json:"has_older"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

func (e *Engine) ListHistory(ctx context.Context, enrollmentID uint, limit, offset int) (HistoryPage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	db := e.db.WithContext(ctx)
	var enrollment models.Enrollment
	if err := db.Select("id").Where("id = ?", enrollmentID).Take(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return HistoryPage{}, notFound("enrollment", enrollmentID)
		}
		return HistoryPage{}, storageError(opListHistory, err)
	}

	page := HistoryPage{Items: make([]models.HistoryEntry, 0), Limit: limit, Offset: offset}
	if err := db.Model(&models.HistoryEntry{}).Where("enrollment_id = ?", enrollmentID).Count(&page.Total).Error; err != nil {
		return HistoryPage{}, storageError(opListHistory, err)
	}
	if err := db.Where("enrollment_id = ?", enrollmentID).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&page.Items).Error; err != nil {
		return HistoryPage{}, storageError(opListHistory, err)
	}
	page.HasOlder = int64(offset+len(page.Items)) < page.Total
	return page, nil
}

// GetEnrollment returns the enrollment with its step states ordered by day.
// Callers re-read through this after ErrStepNotPending.
func (e *Engine) GetEnrollment(ctx context.Context, enrollmentID uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := e.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("day_offset ASC, step_id ASC")
		}).
		Preload("Steps.Step", func(db *gorm.DB) *gorm.DB {
			return db.Unscoped()
		}).
		Where("id = ?", enrollmentID).
		Take(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("enrollment", enrollmentID)
	}
	if err != nil {
		return nil, storageError(opGetEnrollment, err)
	}
	return &enrollment, nil
}
