package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/oncallops/flare/internal/rules"
	domain "github.com/oncallops/flare/pkg/types"
)

// RulesHandler handles alert rule CRUD operations against the live registry.
// Changes take effect on the next evaluation tick.
type RulesHandler struct {
	registry *rules.Registry
}

// NewRulesHandler creates a new RulesHandler.
func NewRulesHandler(r *rules.Registry) *RulesHandler {
	return &RulesHandler{registry: r}
}

// List handles GET /api/v1/rules.
//
// @Summary List rules
// @Description Returns all registered alert rules, ordered by id.
// @Tags rules
// @Produce json
// @Success 200 {array} domain.AlertRule
// @Router /api/v1/rules [get]
func (h *RulesHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.Rules(c.Request().Context()))
}

// Get handles GET /api/v1/rules/:id.
//
// @Summary Get a rule by ID
// @Tags rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} domain.AlertRule
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rules/{id} [get]
func (h *RulesHandler) Get(c echo.Context) error {
	rule, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
	}

	return c.JSON(http.StatusOK, rule)
}

// Create handles POST /api/v1/rules.
//
// @Summary Create a rule
// @Description Registers a new alert rule. The rule id must not already exist.
// @Tags rules
// @Accept json
// @Produce json
// @Param rule body domain.AlertRule true "Rule to create"
// @Success 201 {object} domain.AlertRule
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rules [post]
func (h *RulesHandler) Create(c echo.Context) error {
	var rule domain.AlertRule
	if err := c.Bind(&rule); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	if _, ok := h.registry.Get(rule.ID); ok {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "rule already exists: " + rule.ID,
		})
	}

	if _, err := h.registry.Upsert(rule); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, rule)
}

// Update handles PUT /api/v1/rules/:id.
//
// @Summary Update a rule
// @Description Replaces an existing rule. The path id wins over any id in
// the body.
// @Tags rules
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param rule body domain.AlertRule true "Updated rule"
// @Success 200 {object} domain.AlertRule
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rules/{id} [put]
func (h *RulesHandler) Update(c echo.Context) error {
	id := c.Param("id")

	if _, ok := h.registry.Get(id); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
	}

	var rule domain.AlertRule
	if err := c.Bind(&rule); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	rule.ID = id
	if _, err := h.registry.Upsert(rule); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
	}

	return c.JSON(http.StatusOK, rule)
}

// Delete handles DELETE /api/v1/rules/:id.
//
// @Summary Delete a rule
// @Description Removes a rule. Alerts it already fired resolve on the next
// tick.
// @Tags rules
// @Param id path string true "Rule ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rules/{id} [delete]
func (h *RulesHandler) Delete(c echo.Context) error {
	if !h.registry.Delete(c.Param("id")) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
	}

	return c.NoContent(http.StatusNoContent)
}
