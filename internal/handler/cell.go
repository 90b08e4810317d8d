package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/promptgrid/api/internal/middleware"
	"github.com/promptgrid/api/internal/model"
	"github.com/promptgrid/api/internal/service"
	"github.com/promptgrid/api/internal/store"
	"github.com/promptgrid/api/pkg/response"
)

type CellHandler struct {
	service   *service.CellService
	validator *validator.Validate
}

func NewCellHandler(svc *service.CellService, v *validator.Validate) *CellHandler {
	return &CellHandler{
		service:   svc,
		validator: v,
	}
}

// ListSheets handles GET /api/sheets
func (h *CellHandler) ListSheets(c *fiber.Ctx) error {
	sheets, err := h.service.ListSheets(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"sheets": sheets})
}

// ListCells handles GET /api/sheets/:sheet/cells
func (h *CellHandler) ListCells(c *fiber.Ctx) error {
	sheet := c.Params("sheet")
	cells, err := h.service.ListCells(c.Context(), sheet)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"sheet": sheet, "cells": cells})
}

// Upsert handles PUT /api/sheets/:sheet/cells/:ref
func (h *CellHandler) Upsert(c *fiber.Ctx) error {
	// params are backed by the request buffer, which fiber reuses;
	// copy them before they end up stored on the cell
	sheet := utils.CopyString(c.Params("sheet"))
	ref := utils.CopyString(c.Params("ref"))

	var req model.CellUpsertRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	cell, err := h.service.UpsertCell(c.Context(), sheet, ref, middleware.GetUserID(c), &req)
	if err != nil {
		if err.Error() == "invalid cell reference" {
			return response.ValidationError(c, "Invalid cell reference", nil)
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, cell)
}

// Get handles GET /api/sheets/:sheet/cells/:ref
func (h *CellHandler) Get(c *fiber.Ctx) error {
	cell, err := h.service.GetCell(c.Context(), c.Params("sheet"), c.Params("ref"))
	if err != nil {
		if err == store.ErrCellNotFound {
			return response.NotFound(c, "Cell not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, cell)
}

// Delete handles DELETE /api/sheets/:sheet/cells/:ref
func (h *CellHandler) Delete(c *fiber.Ctx) error {
	err := h.service.DeleteCell(c.Context(), c.Params("sheet"), c.Params("ref"))
	if err != nil {
		if err == store.ErrCellNotFound {
			return response.NotFound(c, "Cell not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}

// Deps handles GET /api/sheets/:sheet/cells/:ref/deps
func (h *CellHandler) Deps(c *fiber.Ctx) error {
	deps, err := h.service.Deps(c.Context(), c.Params("sheet"), c.Params("ref"))
	if err != nil {
		if err == store.ErrCellNotFound {
			return response.NotFound(c, "Cell not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, deps)
}

// ListConnections handles GET /api/sheets/:sheet/connections
func (h *CellHandler) ListConnections(c *fiber.Ctx) error {
	conns, err := h.service.ListConnections(c.Context(), c.Params("sheet"))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"connections": conns})
}

// CreateConnection handles POST /api/sheets/:sheet/connections
func (h *CellHandler) CreateConnection(c *fiber.Ctx) error {
	var req model.ConnectionCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	// copied for the same reason as Upsert: the sheet name is stored
	// on the connection
	conn, err := h.service.CreateConnection(c.Context(), utils.CopyString(c.Params("sheet")), &req)
	if err != nil {
		if err == store.ErrCellNotFound {
			return response.ValidationError(c, "Connection endpoints must be existing cells", nil)
		}
		return response.ServiceError(c, err.Error())
	}
	return response.Created(c, conn)
}

// DeleteConnection handles DELETE /api/sheets/:sheet/connections/:id
func (h *CellHandler) DeleteConnection(c *fiber.Ctx) error {
	err := h.service.DeleteConnection(c.Context(), c.Params("sheet"), c.Params("id"))
	if err != nil {
		if err == store.ErrConnectionNotFound {
			return response.NotFound(c, "Connection not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}
