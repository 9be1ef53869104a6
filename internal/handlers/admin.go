package handlers

import (
	"crypto/subtle"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/holly/internal/services/registry"
	"github.com/Ramsey-B/holly/pkg/middleware"
	"github.com/Ramsey-B/holly/pkg/models"
	"github.com/Ramsey-B/holly/pkg/tracing"
)

// AdminHandler serves the dashboard: roster listing and participant
// management.
type AdminHandler struct {
	registry *registry.Service
	adminPIN string
	logger   ectologger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(registry *registry.Service, adminPIN string, logger ectologger.Logger) *AdminHandler {
	return &AdminHandler{
		registry: registry,
		adminPIN: adminPIN,
		logger:   logger,
	}
}

// RegisterRoutes registers admin routes. Login stays outside the auth
// middleware; everything else requires the admin PIN header.
func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/login", h.Login)

	guarded := g.Group("", middleware.AdminAuth(h.adminPIN))
	guarded.GET("/participants", h.ListParticipants)
	guarded.POST("/participants", h.CreateParticipant)
	guarded.PATCH("/participants/:id", h.UpdateParticipant)
	guarded.DELETE("/participants/:id", h.DeleteParticipant)
}

type adminLoginRequest struct {
	PIN string `json:"pin" validate:"required"`
}

// Login verifies the admin PIN so the dashboard can gate its UI before
// issuing authenticated requests.
func (h *AdminHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "admin_handler.Login")
	defer span.End()

	var req adminLoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	if subtle.ConstantTimeCompare([]byte(req.PIN), []byte(h.adminPIN)) != 1 {
		h.logger.WithContext(ctx).Warn("Admin login failed")
		return Unauthorized("invalid admin pin")
	}

	return SuccessResponse(c, map[string]string{"status": "ok"})
}

// ListParticipants returns the full roster with assignment status and
// resolved exclusions.
func (h *AdminHandler) ListParticipants(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "admin_handler.ListParticipants")
	defer span.End()

	views, err := h.registry.List(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, views)
}

type createParticipantRequest struct {
	Name        string      `json:"name" validate:"required"`
	PIN         string      `json:"pin" validate:"required,len=4,numeric"`
	ExcludedIDs []uuid.UUID `json:"excluded_ids"`
}

// CreateParticipant registers a participant and their exclusion set.
func (h *AdminHandler) CreateParticipant(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "admin_handler.CreateParticipant")
	defer span.End()

	var req createParticipantRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	p, err := h.registry.Create(ctx, models.CreateParticipantRequest{
		Name:        req.Name,
		PIN:         req.PIN,
		ExcludedIDs: req.ExcludedIDs,
	})
	if err != nil {
		return err
	}

	return CreatedResponse(c, p)
}

type updateParticipantRequest struct {
	Name        *string      `json:"name"`
	PIN         *string      `json:"pin" validate:"omitempty,len=4,numeric"`
	ExcludedIDs *[]uuid.UUID `json:"excluded_ids"`
}

// UpdateParticipant applies a partial update to a participant.
func (h *AdminHandler) UpdateParticipant(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "admin_handler.UpdateParticipant")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req updateParticipantRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	p, err := h.registry.Update(ctx, id, models.UpdateParticipantRequest{
		Name:        req.Name,
		PIN:         req.PIN,
		ExcludedIDs: req.ExcludedIDs,
	})
	if err != nil {
		return err
	}

	return SuccessResponse(c, p)
}

// DeleteParticipant removes a participant from the exchange.
func (h *AdminHandler) DeleteParticipant(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "admin_handler.DeleteParticipant")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.registry.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}
