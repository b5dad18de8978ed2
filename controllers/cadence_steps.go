package controller

import (
	"context"

	"cadenceflow/engine"
	"cadenceflow/models"
	"cadenceflow/utils"

	"github.com/gofiber/fiber/v2"
)

func (cc *CadenceController) CompleteStep(c *fiber.Ctx) error {
	return cc.resolveStep(c, "complete_step", cc.Engine.CompleteStep)
}

func (cc *CadenceController) SkipStep(c *fiber.Ctx) error {
	return cc.resolveStep(c, "skip_step", cc.Engine.SkipStep)
}

type resolveFunc func(ctx context.Context, enrollmentID, stepID uint) (engine.StepResult, error)

func (cc *CadenceController) resolveStep(c *fiber.Ctx, action string, resolve resolveFunc) error {
	enrollmentID, err := cc.ownedEnrollmentParam(c)
	if err != nil {
		return cc.respondError(c, action, err)
	}
	stepID, err := utils.ParseUint(c.Params("stepId"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_id", "Invalid step ID")
	}

	result, err := resolve(c.UserContext(), enrollmentID, stepID)
	if err != nil {
		return cc.respondError(c, action, err)
	}
	return c.JSON(fiber.Map{
		"success":           true,
		"day_completed":     result.DayCompleted,
		"cadence_completed": result.CadenceCompleted,
		"reanchored":        result.Reanchored,
	})
}

func (cc *CadenceController) PostponeStep(c *fiber.Ctx) error {
	enrollmentID, err := cc.ownedEnrollmentParam(c)
	if err != nil {
		return cc.respondError(c, "postpone_step", err)
	}
	stepID, err := utils.ParseUint(c.Params("stepId"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_id", "Invalid step ID")
	}

	var input struct {
		DueOn string `json:"due_on" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_body", "Invalid request body")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}
	dueOn, err := models.ParseDate(input.DueOn)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid_date", err.Error())
	}

	if err := cc.Engine.PostponeStep(c.UserContext(), enrollmentID, stepID, dueOn); err != nil {
		return cc.respondError(c, "postpone_step", err)
	}
	return c.JSON(fiber.Map{"success": true, "ok": true, "due_on": dueOn})
}
