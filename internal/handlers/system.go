package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// SystemHandler serves liveness and recent logs
type SystemHandler struct {
	d *Deps
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(d *Deps) *SystemHandler {
	return &SystemHandler{d: d}
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *SystemHandler) Logs(c *fiber.Ctx) error {
	if h.d.LogBuffer == nil {
		return c.JSON(fiber.Map{"logs": []string{}})
	}
	return c.JSON(fiber.Map{"logs": h.d.LogBuffer.GetLogs()})
}
