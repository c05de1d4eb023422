package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"foodmarket/internal/domain"
	"foodmarket/internal/dto"
	"foodmarket/internal/order/usecase"
	"foodmarket/internal/server/httpx"
)

type OrderUseCase interface {
	Checkout(ctx context.Context, userID string, req usecase.CheckoutRequest) (*domain.Order, error)
	AdvanceStatus(ctx context.Context, orderID, actorID string, to domain.OrderStatus) (*domain.Order, error)
	Cancel(ctx context.Context, orderID, actorID string, reason *string) (*domain.Order, error)
	ListForBuyer(ctx context.Context, userID string, page, limit int) (*usecase.OrderPage, error)
	ListForRestaurant(ctx context.Context, ownerID string) ([]domain.Order, error)
	Get(ctx context.Context, orderID, actorID string) (*domain.Order, error)
	Status(ctx context.Context, orderID, actorID string) (domain.OrderStatus, error)
	Hide(ctx context.Context, orderID, userID string) error
	Reorder(ctx context.Context, orderID, userID string) (*usecase.ReorderResult, error)
}

type OrderController struct {
	useCase OrderUseCase
	logger  *zap.Logger
}

func NewOrderController(useCase OrderUseCase, logger *zap.Logger) *OrderController {
	return &OrderController{
		useCase: useCase,
		logger:  logger,
	}
}

func (c *OrderController) Routes(r chi.Router) {
	r.Post("/checkout", c.Checkout)
	r.Get("/", c.ListMine)
	r.Get("/restaurant", c.ListRestaurant)
	r.Get("/{id}", c.Get)
	r.Get("/{id}/status", c.Status)
	r.Patch("/{id}/status", c.UpdateStatus)
	r.Post("/{id}/cancel", c.Cancel)
	r.Post("/{id}/reorder", c.Reorder)
	r.Delete("/{id}", c.Hide)
}

func (c *OrderController) Checkout(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	isDelivery := true
	if req.IsDelivery != nil {
		isDelivery = *req.IsDelivery
	}

	order, err := c.useCase.Checkout(r.Context(), userID, usecase.CheckoutRequest{
		AddressID:     req.AddressID,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
		IsDelivery:    isDelivery,
	})
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	logger.Info("order created", zap.String("orderId", order.ID), zap.Int64("total", order.Total))
	httpx.WriteJSON(w, http.StatusCreated, dto.OrderResponse{TraceID: traceID, Order: toOrderDTO(order)}, logger)
}

func (c *OrderController) ListMine(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	page := queryInt(r, "page")
	limit := queryInt(r, "limit")

	result, err := c.useCase.ListForBuyer(r.Context(), userID, page, limit)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, dto.OrderListResponse{
		TraceID: traceID,
		Data:    toOrderDTOs(result.Orders),
		Meta: &dto.PageMeta{
			Page:       result.Page,
			Limit:      result.Limit,
			Total:      result.Total,
			TotalPages: result.TotalPages,
		},
	}, logger)
}

func (c *OrderController) ListRestaurant(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	orders, err := c.useCase.ListForRestaurant(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.OrderListResponse{TraceID: traceID, Data: toOrderDTOs(orders)}, logger)
}

func (c *OrderController) Get(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	order, err := c.useCase.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.OrderResponse{TraceID: traceID, Order: toOrderDTO(order)}, logger)
}

func (c *OrderController) Status(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "id")
	status, err := c.useCase.Status(r.Context(), orderID, userID)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.OrderStatusResponse{TraceID: traceID, OrderID: orderID, Status: string(status)}, logger)
}

func (c *OrderController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	var req dto.UpdateOrderStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	order, err := c.useCase.AdvanceStatus(r.Context(), chi.URLParam(r, "id"), userID, domain.OrderStatus(req.Status))
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.OrderResponse{TraceID: traceID, Order: toOrderDTO(order)}, logger)
}

func (c *OrderController) Cancel(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	var req dto.CancelOrderRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, traceID, err, logger)
			return
		}
	}

	order, err := c.useCase.Cancel(r.Context(), chi.URLParam(r, "id"), userID, req.Reason)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.OrderResponse{TraceID: traceID, Order: toOrderDTO(order)}, logger)
}

func (c *OrderController) Reorder(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	res, err := c.useCase.Reorder(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.ReorderResponse{
		TraceID:     traceID,
		Added:       toReorderItems(res.Added),
		Unavailable: toReorderItems(res.Unavailable),
	}, logger)
}

func (c *OrderController) Hide(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	if err := c.useCase.Hide(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt returns 0 when the parameter is missing or malformed; the use
// case applies the defaults.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func toOrderDTOs(orders []domain.Order) []dto.OrderDTO {
	out := make([]dto.OrderDTO, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderDTO(&orders[i]))
	}
	return out
}

func toOrderDTO(o *domain.Order) dto.OrderDTO {
	items := make([]dto.OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, dto.OrderItemDTO{
			ID:           it.ID,
			ProductID:    it.ProductID,
			VariantID:    it.VariantID,
			VariantLabel: it.VariantLabel,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			LineTotal:    it.LineTotal(),
		})
	}
	return dto.OrderDTO{
		ID:              o.ID,
		UserID:          o.UserID,
		RestaurantID:    o.RestaurantID,
		Status:          string(o.Status),
		SubTotal:        o.SubTotal,
		DeliveryFee:     o.DeliveryFee,
		Total:           o.Total,
		IsDelivery:      o.IsDelivery,
		PaymentMethod:   string(o.PaymentMethod),
		Notes:           o.Notes,
		DeliveryAddress: o.DeliveryAddress,
		PaidAt:          o.PaidAt,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toReorderItems(lines []usecase.ReorderLine) []dto.ReorderItemDTO {
	out := make([]dto.ReorderItemDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, dto.ReorderItemDTO{
			ProductID:    l.ProductID,
			VariantID:    l.VariantID,
			VariantLabel: l.VariantLabel,
			Quantity:     l.Quantity,
		})
	}
	return out
}
