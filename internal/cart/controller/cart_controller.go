package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"foodmarket/internal/domain"
	"foodmarket/internal/dto"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/server/httpx"
)

type CartUseCase interface {
	AddLine(ctx context.Context, userID, variantID string, quantity int) error
	AddMenuBundle(ctx context.Context, userID, menuID string, quantity int) (string, error)
	UpdateLine(ctx context.Context, userID, lineID string, quantity int) error
	RemoveLine(ctx context.Context, userID, lineID string) error
	UpdateMenuBundle(ctx context.Context, userID, groupID string, quantity int) error
	RemoveMenuBundle(ctx context.Context, userID, groupID string) error
	Clear(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (*domain.CartSnapshot, error)
}

type CartController struct {
	useCase CartUseCase
	logger  *zap.Logger
}

func NewCartController(useCase CartUseCase, logger *zap.Logger) *CartController {
	return &CartController{
		useCase: useCase,
		logger:  logger,
	}
}

func (c *CartController) Routes(r chi.Router) {
	r.Get("/", c.Get)
	r.Delete("/", c.Clear)
	r.Post("/lines", c.AddLine)
	r.Patch("/lines/{lineId}", c.UpdateLine)
	r.Delete("/lines/{lineId}", c.RemoveLine)
	r.Post("/bundles", c.AddBundle)
	r.Patch("/bundles/{groupId}", c.UpdateBundle)
	r.Delete("/bundles/{groupId}", c.RemoveBundle)
}

func (c *CartController) Get(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	userID, ok := httpx.RequireUser(w, r, traceID, c.logger)
	if !ok {
		return
	}
	c.writeCart(w, r, traceID, userID, http.StatusOK)
}

func (c *CartController) AddLine(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	var req dto.AddCartLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	if req.VariantID == "" {
		httpx.WriteValidationError(w, traceID, "validation failed", logger, detail("variantId", "variantId is required"))
		return
	}

	if err := c.useCase.AddLine(r.Context(), userID, req.VariantID, req.Quantity); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	c.writeCart(w, r, traceID, userID, http.StatusCreated)
}

func (c *CartController) UpdateLine(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	var req dto.QuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	if err := c.useCase.UpdateLine(r.Context(), userID, chi.URLParam(r, "lineId"), req.Quantity); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	c.writeCart(w, r, traceID, userID, http.StatusOK)
}

func (c *CartController) RemoveLine(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	if err := c.useCase.RemoveLine(r.Context(), userID, chi.URLParam(r, "lineId")); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	c.writeCart(w, r, traceID, userID, http.StatusOK)
}

func (c *CartController) AddBundle(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	var req dto.AddMenuBundleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	if req.MenuID == "" {
		httpx.WriteValidationError(w, traceID, "validation failed", logger, detail("menuId", "menuId is required"))
		return
	}

	groupID, err := c.useCase.AddMenuBundle(r.Context(), userID, req.MenuID, req.Quantity)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dto.MenuBundleResponse{TraceID: traceID, MenuGroupID: groupID}, logger)
}

func (c *CartController) UpdateBundle(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	var req dto.QuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	if err := c.useCase.UpdateMenuBundle(r.Context(), userID, chi.URLParam(r, "groupId"), req.Quantity); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	c.writeCart(w, r, traceID, userID, http.StatusOK)
}

func (c *CartController) RemoveBundle(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	if err := c.useCase.RemoveMenuBundle(r.Context(), userID, chi.URLParam(r, "groupId")); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	c.writeCart(w, r, traceID, userID, http.StatusOK)
}

func (c *CartController) Clear(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	if err := c.useCase.Clear(r.Context(), userID); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	c.writeCart(w, r, traceID, userID, http.StatusOK)
}

func (c *CartController) writeCart(w http.ResponseWriter, r *http.Request, traceID, userID string, status int) {
	snap, err := c.useCase.Get(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, traceID, err, c.logger.With(zap.String("traceId", traceID)))
		return
	}
	httpx.WriteJSON(w, status, toCartResponse(traceID, snap), c.logger)
}

func toCartResponse(traceID string, snap *domain.CartSnapshot) dto.CartResponse {
	resp := dto.CartResponse{
		TraceID:      traceID,
		CartID:       snap.CartID,
		RestaurantID: snap.RestaurantID,
		Lines:        make([]dto.CartLineDTO, 0, len(snap.Lines)),
		SubTotal:     snap.SubTotal(),
	}
	for _, l := range snap.Lines {
		label := l.VariantLabel
		if label == "" {
			label = domain.DefaultVariantLabel
		}
		resp.Lines = append(resp.Lines, dto.CartLineDTO{
			LineID:       l.LineID,
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			VariantID:    l.VariantID,
			VariantLabel: label,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			LineTotal:    l.LineTotal(),
			IsAvailable:  l.IsAvailable,
			MenuID:       l.MenuID,
			MenuGroupID:  l.MenuGroupID,
		})
		resp.ItemCount += l.Quantity
	}
	return resp
}

func detail(field, message string) apperrors.ValidationDetail {
	return apperrors.ValidationDetail{Field: field, Message: message}
}
