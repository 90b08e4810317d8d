package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/promptgrid/api/internal/service"
	"github.com/promptgrid/api/internal/store"
	"github.com/promptgrid/api/pkg/response"
)

type RunHandler struct {
	service *service.CellService
}

func NewRunHandler(svc *service.CellService) *RunHandler {
	return &RunHandler{service: svc}
}

// Run handles POST /api/sheets/:sheet/cells/:ref/run
func (h *RunHandler) Run(c *fiber.Ctx) error {
	result, err := h.service.EnqueueRun(c.Context(), c.Params("sheet"), c.Params("ref"))
	if err != nil {
		if err == store.ErrCellNotFound {
			return response.NotFound(c, "Cell not found")
		}
		if err.Error() == "cell has no prompt" {
			return response.ValidationError(c, "Cell has no prompt", nil)
		}
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, result)
}

// Stop handles POST /api/sheets/:sheet/cells/:ref/stop
func (h *RunHandler) Stop(c *fiber.Ctx) error {
	if err := h.service.StopCell(c.Context(), c.Params("sheet"), c.Params("ref")); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"stopped": true})
}
