package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/platform/auth"
	"github.com/lumenshop/api/internal/platform/httpx"
	"github.com/lumenshop/api/internal/platform/pagination"
	"github.com/lumenshop/api/internal/services"
)

const (
	defaultOrderPageSize  = 20
	maxOrderPageSize      = 100
	maxCreateOrderBody    = 64 * 1024
	maxSetStatusBodySize  = 4 * 1024
	orderIDRouteParameter = "orderID"
)

type createOrderRequest struct {
	Items   []orderLineRequest   `json:"items"`
	Address *addressRequest      `json:"address,omitempty"`
	Payment *orderPaymentRequest `json:"payment,omitempty"`
}

type orderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderPaymentRequest struct {
	Provider      string `json:"provider"`
	TransactionID string `json:"transactionId,omitempty"`
}

type setOrderStatusRequest struct {
	Status string `json:"status"`
}

// OrderHandlers exposes the order lifecycle endpoints for authenticated users.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the user facing /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCreateOrderBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		UserID: identity.UID,
		Items:  make([]services.OrderLineInput, 0, len(req.Items)),
	}
	for _, line := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderLineInput{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}
	if req.Address != nil {
		address := buildAddressInput(*req.Address)
		cmd.Address = &address
	}
	if req.Payment != nil {
		cmd.Payment = &services.PaymentIntentInput{
			Provider:      strings.TrimSpace(req.Payment.Provider),
			TransactionID: strings.TrimSpace(req.Payment.TransactionID),
		}
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.ListOrdersQuery{
		UserID: identity.UID,
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	for _, raw := range r.URL.Query()["status"] {
		for _, candidate := range strings.Split(raw, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" {
				continue
			}
			status, ok := domain.ParseOrderStatus(candidate)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown value", http.StatusBadRequest))
				return
			}
			query.Status = append(query.Status, status)
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("createdAfter")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdAfter must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		query.CreatedFrom = &ts
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("createdBefore")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdBefore must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		query.CreatedTo = &ts
	}

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID:     orderID,
		CallerID:    identity.UID,
		CallerAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID:  orderID,
		CallerID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type orderSummaryPayload struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Total     string `json:"total"`
	CreatedAt string `json:"createdAt"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	Status      string             `json:"status"`
	Subtotal    string             `json:"subtotal"`
	Tax         string             `json:"tax"`
	Discount    string             `json:"discount"`
	ShippingFee string             `json:"shippingFee"`
	Total       string             `json:"total"`
	Items       []orderItemPayload `json:"items"`
	Address     *addressPayload    `json:"address,omitempty"`
	Payment     *paymentPayload    `json:"payment,omitempty"`
	CreatedAt   string             `json:"createdAt"`
	UpdatedAt   string             `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	ImageURL    string `json:"imageUrl,omitempty"`
	UnitPrice   string `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	Subtotal    string `json:"subtotal"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:        order.ID,
		Status:    string(order.Status),
		Total:     order.Total.String(),
		CreatedAt: formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Subtotal:    order.Subtotal.String(),
		Tax:         order.Tax.String(),
		Discount:    order.Discount.String(),
		ShippingFee: order.ShippingFee.String(),
		Total:       order.Total.String(),
		Items:       make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			ImageURL:    item.ImageURL,
			UnitPrice:   item.UnitPrice.String(),
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal.String(),
		})
	}
	if order.Address != nil {
		address := buildAddressPayload(*order.Address)
		payload.Address = &address
	}
	if order.Payment != nil {
		payment := buildPaymentPayload(*order.Payment)
		payload.Payment = &payment
	}
	return payload
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func requireOrderID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, orderIDRouteParameter))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "caller may not access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrPricingProductInactive):
		httpx.WriteError(ctx, w, httpx.NewError("product_inactive", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPricingInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
