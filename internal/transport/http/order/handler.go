package order

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/beacon/internal/dto"
	"github.com/Additional-Code/beacon/internal/order"
	"github.com/Additional-Code/beacon/internal/presentation/http/response"
	"github.com/Additional-Code/beacon/internal/sync"
	"github.com/Additional-Code/beacon/pkg/errorbank"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/beacon/transport/http/order")

// Handler exposes the sync controller's programmatic API over HTTP.
type Handler struct {
	ctrl *sync.Controller
}

// NewHandler constructs an order Handler.
func NewHandler(ctrl *sync.Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.GET("", h.list)
	g.GET("/notices", h.notices)
	g.GET("/:id", h.getByID)
	g.POST("/refresh", h.refresh)
	g.POST("/bulk-delete", h.bulkDelete)
	g.POST("/:id/status", h.changeStatus)
	g.POST("/:id/driver", h.assignDriver)
	g.POST("/:id/archive", h.archive)
	g.POST("/:id/restore", h.restore)
	g.PUT("/:id/notes", h.setNotes)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	tab := sync.TabActive
	if c.QueryParam("tab") == string(sync.TabHistory) {
		tab = sync.TabHistory
	}

	filters := sync.Filters{
		Search: c.QueryParam("search"),
		Store:  c.QueryParam("store"),
	}
	if raw := c.QueryParam("status"); raw != "" {
		status, err := order.ParseStatus(raw)
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid status filter", errorbank.WithCause(err))).Build()
		}
		filters.Status = status
	}
	if raw := c.QueryParam("day"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid day filter, expected YYYY-MM-DD", errorbank.WithCause(err))).Build()
		}
		filters.Day = day
	}

	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			page = parsed
		}
	}

	_, span := httpTracer.Start(c.Request().Context(), "orders.list", trace.WithAttributes(
		attribute.String("orders.tab", string(tab)),
		attribute.Int("orders.page", page),
	))
	defer span.End()

	view := h.ctrl.GetView(tab, filters, page)
	return b.WithData(toViewDTO(view)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id := c.Param("id")
	o, ok := h.ctrl.Get(id)
	if !ok {
		return b.WithError(errorbank.NotFound("order not found")).Build()
	}
	return b.WithData(toDTO(o)).Build()
}

func (h *Handler) refresh(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.refresh")
	defer span.End()

	if err := h.ctrl.RefetchAll(ctx); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]int{"count": len(h.ctrl.Orders())}).Build()
}

func (h *Handler) changeStatus(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	status, err := order.ParseStatus(payload.Status)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid status", errorbank.WithCause(err))).Build()
	}

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.changeStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", payload.Status),
	))
	defer span.End()

	if err := h.ctrl.ChangeStatus(ctx, id, status); err != nil {
		return b.WithError(err).Build()
	}
	return h.respondWithOrder(b, id)
}

func (h *Handler) assignDriver(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		DriverID string `json:"driver_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.assignDriver", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := h.ctrl.AssignDriver(ctx, id, payload.DriverID); err != nil {
		return b.WithError(err).Build()
	}
	return h.respondWithOrder(b, id)
}

func (h *Handler) archive(c echo.Context) error {
	b := response.New(c)

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.archive", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := h.ctrl.Archive(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return h.respondWithOrder(b, id)
}

func (h *Handler) restore(c echo.Context) error {
	b := response.New(c)

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.restore", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := h.ctrl.Restore(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return h.respondWithOrder(b, id)
}

func (h *Handler) setNotes(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Notes string `json:"notes"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.setNotes", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := h.ctrl.SetNotes(ctx, id, payload.Notes); err != nil {
		return b.WithError(err).Build()
	}
	return h.respondWithOrder(b, id)
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := h.ctrl.Delete(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) bulkDelete(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if len(payload.IDs) == 0 {
		return b.WithError(errorbank.BadRequest("ids are required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.bulkDelete", trace.WithAttributes(attribute.Int("orders.requested", len(payload.IDs))))
	defer span.End()

	failed := h.ctrl.BulkDelete(ctx, payload.IDs)
	result := dto.BulkDeleteResponse{
		Requested: len(payload.IDs),
		Deleted:   len(payload.IDs) - len(failed),
		Failed:    failed,
	}
	// Partial failure is reported, not treated as an error response.
	return b.WithData(result).Build()
}

func (h *Handler) notices(c echo.Context) error {
	return response.New(c).WithData(h.ctrl.Notices()).Build()
}

func (h *Handler) respondWithOrder(b *response.Builder, id string) error {
	if o, ok := h.ctrl.Get(id); ok {
		return b.WithData(toDTO(o)).Build()
	}
	// The mutation no-opped because the order vanished; that is the newer
	// truth, not an error.
	return b.WithStatus(http.StatusNoContent).Build()
}

func toDTO(o order.Order) dto.OrderResponse {
	resp := dto.OrderResponse{
		ID:               o.ID,
		Status:           string(o.Status),
		IsArchived:       o.IsArchived,
		AssignedDriverID: o.AssignedDriverID,
		Notes:            o.Notes,
		CustomerName:     o.CustomerName,
		Phone:            o.Phone,
		Location:         o.Location,
		StoreName:        o.StoreName,
		PaymentMethod:    o.PaymentMethod,
		Total:            o.Total,
		DeliveryFee:      o.DeliveryFee,
		CreatedAt:        o.CreatedAt,
	}
	resp.StatusHistory = make([]dto.StatusHistoryEntry, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, dto.StatusHistoryEntry{
			Status:    string(h.Status),
			Timestamp: h.Timestamp,
		})
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, dto.OrderItem{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}
	return resp
}

func toViewDTO(v sync.View) dto.OrderViewResponse {
	resp := dto.OrderViewResponse{
		Orders:     make([]dto.OrderResponse, 0, len(v.Orders)),
		Page:       v.Page,
		PageSize:   v.PageSize,
		TotalPages: v.TotalPages,
		Total:      v.Total,
	}
	for _, o := range v.Orders {
		resp.Orders = append(resp.Orders, toDTO(o))
	}
	return resp
}
