package controller

import (
	"errors"

	"cadenceflow/engine"
	"cadenceflow/middleware"
	"cadenceflow/utils"

	"github.com/gofiber/fiber/v2"
)

var errInvalidID = errors.New("invalid id")

// outcomeCode names a precondition failure the way respondError would.
func outcomeCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrNoActiveSteps):
		return "no_active_steps"
	case errors.Is(err, engine.ErrNotFound):
		return "not_found"
	case errors.Is(err, engine.ErrInvalidInput):
		return "validation_failed"
	}
	return "storage_error"
}

// respondError maps engine outcomes to HTTP responses. Only unexpected
// failures are logged and reported.
func (cc *CadenceController) respondError(c *fiber.Ctx, action string, err error) error {
	var already *engine.AlreadyEnrolledError
	switch {
	case errors.As(err, &already):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success":       false,
			"error":         "Contact is already enrolled in this cadence",
			"code":          "already_enrolled",
			"enrollment_id": already.EnrollmentID,
		})
	case errors.Is(err, engine.ErrStepNotPending):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "step_not_pending",
			"Step is not pending; reload the enrollment and try again")
	case errors.Is(err, engine.ErrInvalidDate):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_date", "New due date must be after today")
	case errors.Is(err, engine.ErrNoActiveSteps):
		return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "no_active_steps", "Cadence has no active steps")
	case errors.Is(err, engine.ErrInvalidInput):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, errInvalidID):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_id", "Invalid ID")
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, errForbiddenResource):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "not_found", "Not found")
	}

	context := map[string]interface{}{
		"action": action,
		"path":   c.Path(),
	}
	if user := middleware.CurrentUser(c); user != nil {
		context["user_id"] = user.ID
	}
	var storageErr *engine.StorageError
	if errors.As(err, &storageErr) {
		context["op"] = storageErr.Op
	}
	utils.LogError("cadence_request_failed", err, context)
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "storage_error", "Something went wrong, please retry")
}
