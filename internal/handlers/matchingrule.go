package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/matchingrule"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// MatchingRuleHandler handles matching rule API endpoints
type MatchingRuleHandler struct {
	repo   *matchingrule.Repository
	logger ectologger.Logger
}

// NewMatchingRuleHandler creates a new matching rule handler
func NewMatchingRuleHandler(repo *matchingrule.Repository, logger ectologger.Logger) *MatchingRuleHandler {
	return &MatchingRuleHandler{
		repo:   repo,
		logger: logger,
	}
}

// Register registers matching rule routes
func (h *MatchingRuleHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// List returns all matching rules for the current tenant
func (h *MatchingRuleHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchingRuleHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	rules, err := h.repo.List(ctx, tenantID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, rules)
}

// Create creates a new matching rule
func (h *MatchingRuleHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchingRuleHandler.Create")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req models.CreateMatchingRuleRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	created, err := h.repo.Create(ctx, tenantID, &req)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).Infof("Created matching rule: %s", created.Name)
	return CreatedResponse(c, created)
}

// GetByID returns a matching rule by ID
func (h *MatchingRuleHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchingRuleHandler.GetByID")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	rule, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, rule)
}

// Update updates a matching rule
func (h *MatchingRuleHandler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchingRuleHandler.Update")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req models.UpdateMatchingRuleRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	updated, err := h.repo.Update(ctx, tenantID, id, &req)
	if err != nil {
		return err
	}

	return SuccessResponse(c, updated)
}

// Delete soft deletes a matching rule
func (h *MatchingRuleHandler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchingRuleHandler.Delete")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	h.logger.WithContext(ctx).Infof("Deleted matching rule: %s", id)
	return NoContentResponse(c)
}
