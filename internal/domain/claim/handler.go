package claim

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
	api.POST("/claims", h.Create)
	api.GET("/claims", h.List)
	api.GET("/claims/:id", h.Get)
	api.GET("/claims/:id/timeline", h.Timeline)
	api.GET("/claims/:id/documents", h.Documents)
	api.POST("/claims/:id/transition", h.Transition)
	api.POST("/claims/:id/documents", h.AttachDocument)

	admin := api.Group("", identity.RequireRole(identity.RoleAdmin))
	admin.POST("/claims/:id/archive", h.Archive)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	case errors.Is(err, ErrConsentRequired):
		return echo.NewHTTPError(http.StatusPreconditionFailed, ErrConsentRequired.Error())
	case errors.Is(err, ErrIllegalTransition):
		return echo.NewHTTPError(http.StatusConflict, ErrIllegalTransition.Error())
	case errors.Is(err, ErrAmountExceedsClaim):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ErrAmountExceedsClaim.Error())
	case errors.Is(err, ErrInvalidParty):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, db.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func actorFrom(c echo.Context) (identity.Identity, error) {
	actor, ok := identity.FromContext(c.Request().Context())
	if !ok {
		return identity.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	return actor, nil
}

func claimID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) Transition(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := claimID(c)
	if err != nil {
		return err
	}
	var body struct {
		Target         Status `json:"target"`
		Comment        string `json:"comment"`
		ApprovedAmount *int64 `json:"approved_amount"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.Transition(c.Request().Context(), actor, id, body.Target, body.Comment, body.ApprovedAmount)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) AttachDocument(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := claimID(c)
	if err != nil {
		return err
	}
	var in DocumentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.AttachDocument(c.Request().Context(), actor, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) Archive(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := claimID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Archive(c.Request().Context(), actor, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := claimID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Timeline(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := claimID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Timeline(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Documents(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := claimID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Documents(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) List(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	var status *Status
	if raw := c.QueryParam("status"); raw != "" {
		st := Status(raw)
		status = &st
	}
	items, total, err := h.svc.List(c.Request().Context(), actor, status, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
