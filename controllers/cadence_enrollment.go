package controller

import (
	"cadenceflow/engine"
	"cadenceflow/middleware"
	"cadenceflow/models"
	"cadenceflow/utils"

	"github.com/gofiber/fiber/v2"
)

func (cc *CadenceController) Enroll(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	cadenceID, err := cc.ownedCadenceParam(c)
	if err != nil {
		return cc.respondError(c, "enroll", err)
	}

	var input struct {
		ContactID uint `json:"contact_id" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_body", "Invalid request body")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	owned, err := cc.ownedContacts(c, []uint{input.ContactID})
	if err != nil {
		return cc.respondError(c, "enroll", err)
	}
	if _, ok := owned[input.ContactID]; !ok {
		return cc.respondError(c, "enroll", errForbiddenResource)
	}

	enrollment, err := cc.Engine.Enroll(c.UserContext(), input.ContactID, cadenceID, user.ID)
	if err != nil {
		return cc.respondError(c, "enroll", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":       true,
		"enrollment_id": enrollment.ID,
		"data":          enrollment,
	})
}

// bulkEnrollResult is one contact's outcome, with the same error code the
// single enroll endpoint would have answered with.
type bulkEnrollResult struct {
	engine.EnrollOutcome
	Code string `json:"code,omitempty"`
}

// BulkEnroll enrolls many contacts and reports an outcome for each. A
// contact that fails does not stop the others.
func (cc *CadenceController) BulkEnroll(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	cadenceID, err := cc.ownedCadenceParam(c)
	if err != nil {
		return cc.respondError(c, "bulk_enroll", err)
	}

	var input struct {
		ContactIDs []uint `json:"contact_ids" validate:"required,min=1,max=500"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_body", "Invalid request body")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	owned, err := cc.ownedContacts(c, input.ContactIDs)
	if err != nil {
		return cc.respondError(c, "bulk_enroll", err)
	}

	allowed := make([]uint, 0, len(input.ContactIDs))
	for _, id := range input.ContactIDs {
		if _, ok := owned[id]; ok {
			allowed = append(allowed, id)
		}
	}

	enrolled, err := cc.Engine.EnrollMany(c.UserContext(), allowed, cadenceID, user.ID)
	if err != nil {
		return cc.respondError(c, "bulk_enroll", err)
	}

	outcomes := make([]bulkEnrollResult, 0, len(input.ContactIDs))
	next := 0
	created := 0
	for _, id := range input.ContactIDs {
		if _, ok := owned[id]; !ok {
			outcomes = append(outcomes, bulkEnrollResult{
				EnrollOutcome: engine.EnrollOutcome{ContactID: id, Error: "contact not found"},
				Code:          "not_found",
			})
			continue
		}
		outcome := enrolled[next]
		next++
		result := bulkEnrollResult{EnrollOutcome: outcome, Code: outcomeCode(outcome.Err())}
		switch {
		case outcome.AlreadyEnrolled:
			result.Code = "already_enrolled"
		case outcome.Err() == nil:
			created++
		}
		outcomes = append(outcomes, result)
	}

	utils.LogEvent("bulk_enroll", map[string]interface{}{
		"user_id":    user.ID,
		"cadence_id": cadenceID,
		"requested":  len(input.ContactIDs),
		"enrolled":   created,
	})
	return c.JSON(fiber.Map{
		"success":  true,
		"enrolled": created,
		"results":  outcomes,
	})
}

func (cc *CadenceController) GetEnrollment(c *fiber.Ctx) error {
	enrollmentID, err := cc.ownedEnrollmentParam(c)
	if err != nil {
		return cc.respondError(c, "get_enrollment", err)
	}

	enrollment, err := cc.Engine.GetEnrollment(c.UserContext(), enrollmentID)
	if err != nil {
		return cc.respondError(c, "get_enrollment", err)
	}
	return c.JSON(utils.SuccessResponse(enrollment))
}

func (cc *CadenceController) RemoveEnrollment(c *fiber.Ctx) error {
	enrollmentID, err := cc.ownedEnrollmentParam(c)
	if err != nil {
		return cc.respondError(c, "remove_enrollment", err)
	}

	removed, err := cc.Engine.Remove(c.UserContext(), enrollmentID)
	if err != nil {
		return cc.respondError(c, "remove_enrollment", err)
	}
	return c.JSON(fiber.Map{"success": true, "ok": true, "removed": removed})
}

func (cc *CadenceController) ListHistory(c *fiber.Ctx) error {
	enrollmentID, err := cc.ownedEnrollmentParam(c)
	if err != nil {
		return cc.respondError(c, "list_history", err)
	}

	limit := c.QueryInt("limit", engine.DefaultHistoryLimit)
	offset := c.QueryInt("offset", 0)

	page, err := cc.Engine.ListHistory(c.UserContext(), enrollmentID, limit, offset)
	if err != nil {
		return cc.respondError(c, "list_history", err)
	}
	return c.JSON(utils.PaginatedResponse{
		Data:     page.Items,
		Total:    page.Total,
		Limit:    page.Limit,
		Offset:   page.Offset,
		HasOlder: page.HasOlder,
	})
}

func (cc *CadenceController) ownedContacts(c *fiber.Ctx, ids []uint) (map[uint]struct{}, error) {
	var found []uint
	if err := cc.DB.WithContext(c.UserContext()).
		Model(&models.Contact{}).
		Where("id IN ? AND user_id = ?", ids, middleware.CurrentUser(c).ID).
		Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	owned := make(map[uint]struct{}, len(found))
	for _, id := range found {
		owned[id] = struct{}{}
	}
	return owned, nil
}
