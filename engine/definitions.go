package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cadenceflow/models"

	"gorm.io/gorm"
)

// StepInput describes one step of a new cadence.
type StepInput struct {
	DayOffset     int                    `json:"day_offset" validate:"min=0"`
	Label         string                 `json:"label" validate:"required,max=200"`
	ActionType    models.ActionType      `json:"action_type" validate:"required,oneof=email phone linkedin task"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	TemplateID    *uint                  `json:"template_id"`
}

// CadenceInput describes a new cadence.
type CadenceInput struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description" validate:"max=2000"`
	Steps       []StepInput `json:"steps" validate:"required,min=1,dive"`
}

func (in CadenceInput) check() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(in.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidInput)
	}
	for i, step := range in.Steps {
		if step.DayOffset < 0 {
			return fmt.Errorf("%w: step %d has a negative day offset", ErrInvalidInput, i)
		}
		if !step.ActionType.Valid() {
			return fmt.Errorf("%w: step %d has unknown action type %q", ErrInvalidInput, i, step.ActionType)
		}
	}
	return nil
}

// CreateCadence stores a cadence definition with its steps.
func (e *Engine) CreateCadence(ctx context.Context, userID uint, in CadenceInput) (*models.Cadence, error) {
	if err := in.check(); err != nil {
		return nil, err
	}

	cadence := models.Cadence{
		UserID:      userID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
	}
	for _, step := range in.Steps {
		cadence.Steps = append(cadence.Steps, models.CadenceStep{
			DayOffset:     step.DayOffset,
			Label:         step.Label,
			ActionType:    step.ActionType,
			ActionPayload: step.ActionPayload,
			TemplateID:    step.TemplateID,
			Active:        true,
		})
	}

	if err := e.db.WithContext(ctx).Create(&cadence).Error; err != nil {
		return nil, storageError(opCreateCadence, err)
	}
	return &cadence, nil
}

// GetCadence returns a cadence with all its steps, inactive ones included,
// in day order.
func (e *Engine) GetCadence(ctx context.Context, cadenceID uint) (*models.Cadence, error) {
	var cadence models.Cadence
	err := e.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("day_offset ASC, id ASC")
		}).
		Where("id = ?", cadenceID).
		Take(&cadence).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("cadence", cadenceID)
	}
	if err != nil {
		return nil, storageError(opGetCadence, err)
	}
	return &cadence, nil
}

func (e *Engine) ListCadences(ctx context.Context, userID uint) ([]models.Cadence, error) {
	cadences := make([]models.Cadence, 0)
	if err := e.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&cadences).Error; err != nil {
		return nil, storageError(opGetCadence, err)
	}
	return cadences, nil
}

// DeactivateStep stops a step from being added to future enrollments.
// Running enrollments keep their state for it.
func (e *Engine) DeactivateStep(ctx context.Context, cadenceID, stepID uint) error {
	update := e.db.WithContext(ctx).
		Model(&models.CadenceStep{}).
		Where("id = ? AND cadence_id = ?", stepID, cadenceID).
		Update("active", false)
	if update.Error != nil {
		return storageError(opDeactivate, update.Error)
	}
	if update.RowsAffected == 0 {
		return notFound("step", stepID)
	}
	return nil
}
