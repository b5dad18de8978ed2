package controller

import (
	"errors"

	"cadenceflow/engine"
	"cadenceflow/middleware"
	"cadenceflow/models"
	"cadenceflow/notify"
	"cadenceflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CadenceController exposes the cadence engine over HTTP. Ownership is
// checked here: a user only sees cadences, contacts and enrollments that
// belong to them, and anything else looks like it does not exist.
type CadenceController struct {
	DB     *gorm.DB
	Engine *engine.Engine
	Hub    *notify.Hub
	Logger *logrus.Entry
}

func NewCadenceController(db *gorm.DB, eng *engine.Engine, hub *notify.Hub, logger *logrus.Entry) *CadenceController {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CadenceController{
		DB:     db,
		Engine: eng,
		Hub:    hub,
		Logger: logger,
	}
}

var errForbiddenResource = errors.New("resource does not belong to user")

func (cc *CadenceController) CreateCadence(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input engine.CadenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_body", "Invalid request body")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	cadence, err := cc.Engine.CreateCadence(c.UserContext(), user.ID, input)
	if err != nil {
		return cc.respondError(c, "create_cadence", err)
	}

	utils.LogEvent("cadence_created", map[string]interface{}{
		"user_id":    user.ID,
		"cadence_id": cadence.ID,
		"steps":      len(cadence.Steps),
	})
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(cadence))
}

func (cc *CadenceController) ListCadences(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	cadences, err := cc.Engine.ListCadences(c.UserContext(), user.ID)
	if err != nil {
		return cc.respondError(c, "list_cadences", err)
	}
	return c.JSON(utils.SuccessResponse(cadences))
}

func (cc *CadenceController) GetCadence(c *fiber.Ctx) error {
	cadenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_id", "Invalid cadence ID")
	}

	cadence, err := cc.Engine.GetCadence(c.UserContext(), cadenceID)
	if err != nil {
		return cc.respondError(c, "get_cadence", err)
	}
	if cadence.UserID != middleware.CurrentUser(c).ID {
		return cc.respondError(c, "get_cadence", errForbiddenResource)
	}
	return c.JSON(utils.SuccessResponse(cadence))
}

func (cc *CadenceController) DeactivateStep(c *fiber.Ctx) error {
	cadenceID, err := cc.ownedCadenceParam(c)
	if err != nil {
		return cc.respondError(c, "deactivate_step", err)
	}
	stepID, err := utils.ParseUint(c.Params("stepId"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_id", "Invalid step ID")
	}

	if err := cc.Engine.DeactivateStep(c.UserContext(), cadenceID, stepID); err != nil {
		return cc.respondError(c, "deactivate_step", err)
	}
	return c.JSON(fiber.Map{"success": true, "ok": true})
}

// ownedCadenceParam parses :id and checks the cadence belongs to the caller.
func (cc *CadenceController) ownedCadenceParam(c *fiber.Ctx) (uint, error) {
	cadenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return 0, errInvalidID
	}

	var cadence models.Cadence
	err = cc.DB.WithContext(c.UserContext()).
		Select("id", "user_id").
		Where("id = ?", cadenceID).
		Take(&cadence).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errForbiddenResource
	}
	if err != nil {
		return 0, err
	}
	if cadence.UserID != middleware.CurrentUser(c).ID {
		return 0, errForbiddenResource
	}
	return cadenceID, nil
}

// ownedEnrollmentParam parses :id and checks the enrollment's cadence
// belongs to the caller.
func (cc *CadenceController) ownedEnrollmentParam(c *fiber.Ctx) (uint, error) {
	enrollmentID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return 0, errInvalidID
	}

	var count int64
	err = cc.DB.WithContext(c.UserContext()).
		Table("enrollments AS e").
		Joins("JOIN cadences cd ON cd.id = e.cadence_id AND cd.deleted_at IS NULL").
		Where("e.id = ? AND cd.user_id = ?", enrollmentID, middleware.CurrentUser(c).ID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, errForbiddenResource
	}
	return enrollmentID, nil
}
