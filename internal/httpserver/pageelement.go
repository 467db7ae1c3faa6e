package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/eventbook/internal/logging"
	authmw "github.com/Skotchmaster/eventbook/internal/middleware/auth"
	"github.com/Skotchmaster/eventbook/internal/models"
	"github.com/Skotchmaster/eventbook/internal/service"
	"github.com/Skotchmaster/eventbook/internal/transport"
	"github.com/Skotchmaster/eventbook/internal/util"
)

const pageElementIDParam = "pageElementId"

type PageElementHTTP struct {
	Svc *service.PageElementService
}

func toResponse(el *models.PageElement) transport.PageElementResponse {
	return transport.PageElementResponse{ID: el.ID, Content: el.Content, Classname: el.Classname}
}

func pageElementID(c echo.Context) (uuid.UUID, error) {
	return uuid.Parse(c.Param(pageElementIDParam))
}

func (h *PageElementHTTP) GetAll(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "pageelement.get_all")

	items, err := h.Svc.GetAll(ctx)
	if err != nil {
		l.Error("get_page_elements_error", "status", 500, "reason", "cannot list page elements", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list page elements")
	}

	out := make([]transport.PageElementResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PageElementHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "pageelement.get")

	id, err := pageElementID(c)
	if err != nil {
		l.Warn("get_page_element_failed", "status", 400, "reason", "id is not a uuid", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a uuid")
	}

	el, err := h.Svc.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			l.Warn("get_page_element_failed", "status", 404, "reason", "page element not found")
			return echo.NewHTTPError(http.StatusNotFound, "page element not found")
		}
		l.Error("get_page_element_failed", "status", 500, "reason", "cannot get page element", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot get page element")
	}

	return c.JSON(http.StatusOK, toResponse(el))
}

func (h *PageElementHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "pageelement.create")

	userID, ok := authmw.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	var req transport.CreatePageElementRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("page_element_create_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("page_element_create_error", "status", 400, "reason", "validation failed", "error", err)
		return c.JSON(http.StatusBadRequest, validationResponse(err))
	}

	id := uuid.Nil
	if req.ID != nil {
		id = *req.ID
	}

	el, err := h.Svc.Create(ctx, userID, id, req.Content, req.Classname)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return c.JSON(http.StatusBadRequest, transport.ValidationErrorResponse{Errors: []transport.ErrorModel{
				{FieldName: "classname", Message: service.ClassnameMessage},
			}})
		case errors.Is(err, service.ErrConflict):
			l.Warn("page_element_create_error", "status", 409, "reason", "id already used")
			return echo.NewHTTPError(http.StatusConflict, "page element already exists")
		default:
			l.Error("page_element_create_error", "status", 500, "reason", "cannot store page element", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot store page element")
		}
	}

	l.Info("create_page_element_success", "id", el.ID)
	c.Response().Header().Set(echo.HeaderLocation, PageElementsPath+"/"+el.ID.String())
	return c.JSON(http.StatusCreated, toResponse(el))
}

func (h *PageElementHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "pageelement.update")

	userID, ok := authmw.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	id, err := pageElementID(c)
	if err != nil {
		l.Warn("page_element_update_error", "status", 400, "reason", "id is not a uuid", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a uuid")
	}

	var req transport.UpdatePageElementRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("page_element_update_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("page_element_update_error", "status", 400, "reason", "validation failed", "error", err)
		return c.JSON(http.StatusBadRequest, validationResponse(err))
	}

	el, err := h.Svc.Update(ctx, id, userID, req.Content, req.Classname)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			l.Warn("page_element_update_error", "status", 404, "reason", "not found or not owner")
			return echo.NewHTTPError(http.StatusNotFound, "page element not found")
		}
		l.Error("page_element_update_error", "status", 500, "reason", "cannot update page element", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot update page element")
	}

	l.Info("update_page_element_success", "id", el.ID)
	return c.JSON(http.StatusOK, toResponse(el))
}

func (h *PageElementHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "pageelement.delete")

	userID, ok := authmw.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	id, err := pageElementID(c)
	if err != nil {
		l.Warn("page_element_delete_error", "status", 400, "reason", "id is not a uuid", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a uuid")
	}

	if err := h.Svc.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			l.Warn("page_element_delete_error", "status", 404, "reason", "not found or not owner")
			return echo.NewHTTPError(http.StatusNotFound, "page element not found")
		}
		l.Error("page_element_delete_error", "status", 500, "reason", "cannot delete page element", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot delete page element")
	}

	l.Info("delete_page_element_success", "id", id)
	return c.NoContent(http.StatusNoContent)
}

func (h *PageElementHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "pageelement.search")

	q := c.QueryParam("q")
	if q == "" {
		l.Warn("search_error", "status", 400, "reason", "empty query")
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	if page < 1 {
		page = 1
	}
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.Search(ctx, q, offset, limit)
	if err != nil {
		l.Error("search_error", "status", 500, "reason", "search failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	data := make([]transport.PageElementResponse, 0, len(items))
	for i := range items {
		data = append(data, toResponse(&items[i]))
	}

	return c.JSON(http.StatusOK, transport.SearchResponse{
		Data: data,
		Meta: transport.PageMeta{
			Page:       page,
			Size:       limit,
			Total:      total,
			TotalPages: (total + int64(limit) - 1) / int64(limit),
			HasPrev:    page > 1,
			HasNext:    int64(offset+limit) < total,
		},
	})
}
