package party

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medimate/api/internal/platform/db"
	"github.com/medimate/api/internal/platform/identity"
	"github.com/medimate/api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", identity.RequireRole(identity.RoleAdmin))
	admin.POST("/parties", h.Create)
	admin.GET("/parties", h.List)

	api.GET("/parties/:id", h.Get)
}

func (h *Handler) Create(c echo.Context) error {
	var p Party
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &p); err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
		}
		return echo.NewHTTPError(http.StatusNotFound, "party not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	role := identity.Role(c.QueryParam("role"))
	items, total, err := h.svc.List(c.Request().Context(), role, pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
