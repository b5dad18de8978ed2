package controller

import (
	"cadenceflow/middleware"
	"cadenceflow/utils"

	"github.com/gofiber/fiber/v2"
)

// GetCadenceToDo lists what every active enrollment of the cadence needs next.
func (cc *CadenceController) GetCadenceToDo(c *fiber.Ctx) error {
	cadenceID, err := cc.ownedCadenceParam(c)
	if err != nil {
		return cc.respondError(c, "list_todo", err)
	}

	items, err := cc.Engine.ListToDo(c.UserContext(), cadenceID)
	if err != nil {
		return cc.respondError(c, "list_todo", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"today":   cc.Engine.Today(),
		"data":    items,
	})
}

// GetDueToDo lists items due today or overdue across the caller's cadences.
func (cc *CadenceController) GetDueToDo(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	items, err := cc.Engine.ListDue(c.UserContext(), user.ID)
	if err != nil {
		return cc.respondError(c, "list_due", err)
	}
	return c.JSON(utils.SuccessResponse(items))
}
