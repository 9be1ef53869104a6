package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/holly/internal/services/registry"
	"github.com/Ramsey-B/holly/pkg/assignment"
	appctx "github.com/Ramsey-B/holly/pkg/context"
	"github.com/Ramsey-B/holly/pkg/tracing"
)

// PlayerHandler serves the participant-facing routes. Players authenticate
// with their personal PIN on every request; there is no session.
type PlayerHandler struct {
	registry *registry.Service
	engine   *assignment.Engine
	logger   ectologger.Logger
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(registry *registry.Service, engine *assignment.Engine, logger ectologger.Logger) *PlayerHandler {
	return &PlayerHandler{
		registry: registry,
		engine:   engine,
		logger:   logger,
	}
}

// RegisterRoutes registers player routes
func (h *PlayerHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/login", h.Login)
	g.POST("/assign", h.Assign)
	g.GET("/roster", h.Roster)
}

type playerLoginRequest struct {
	PIN string `json:"pin" validate:"required"`
}

type playerLoginResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	HasAssignment bool      `json:"has_assignment"`
	TargetName    *string   `json:"target_name,omitempty"`
}

type assignResponse struct {
	Target targetView `json:"target"`
}

// targetView deliberately carries no PIN and no assignment state of the
// target themself.
type targetView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Roster lists everyone in the exchange by name. It is public so the login
// page can show who is playing, and it never exposes PINs or assignments.
func (h *PlayerHandler) Roster(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "player_handler.Roster")
	defer span.End()

	participants, err := h.registry.Roster(ctx)
	if err != nil {
		return err
	}

	roster := make([]targetView, 0, len(participants))
	for _, p := range participants {
		roster = append(roster, targetView{ID: p.ID, Name: p.Name})
	}

	return SuccessResponse(c, roster)
}

// Login identifies a player by PIN.
func (h *PlayerHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "player_handler.Login")
	defer span.End()

	var req playerLoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	p, err := h.registry.Login(ctx, req.PIN)
	if err != nil {
		return err
	}

	resp := playerLoginResponse{
		ID:            p.ID,
		Name:          p.Name,
		HasAssignment: p.HasAssignment(),
	}
	if p.HasAssignment() {
		target, err := h.registry.TargetOf(ctx, p)
		if err != nil {
			return err
		}
		if target != nil {
			resp.TargetName = &target.Name
		}
	}

	return SuccessResponse(c, resp)
}

// Assign reveals the player's target, drawing one on first call. The PIN is
// re-checked here so a stale dashboard cannot draw on someone's behalf.
func (h *PlayerHandler) Assign(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "player_handler.Assign")
	defer span.End()

	var req playerLoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	p, err := h.registry.Login(ctx, req.PIN)
	if err != nil {
		return err
	}

	ctx = appctx.SetParticipantID(ctx, p.ID.String())
	c.SetRequest(c.Request().WithContext(ctx))

	target, err := h.engine.Assign(ctx, p.ID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, assignResponse{
		Target: targetView{ID: target.ID, Name: target.Name},
	})
}
