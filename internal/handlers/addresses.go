package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumenshop/api/internal/domain"
	"github.com/lumenshop/api/internal/platform/auth"
	"github.com/lumenshop/api/internal/platform/httpx"
	"github.com/lumenshop/api/internal/services"
)

const maxAddressBodySize = 8 * 1024

type addressRequest struct {
	RecipientName string `json:"recipientName"`
	Phone         string `json:"phone"`
	Line1         string `json:"line1"`
	Line2         string `json:"line2,omitempty"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
}

// AddressHandlers exposes the shipping address endpoints nested under an order.
type AddressHandlers struct {
	addresses services.AddressService
}

// NewAddressHandlers constructs a new AddressHandlers instance.
func NewAddressHandlers(addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{addresses: addresses}
}

// Routes registers the /orders/{orderID}/address endpoints on the given router.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/address", h.createAddress)
	r.Get("/{orderID}/address", h.getAddress)
	r.Put("/{orderID}/address", h.updateAddress)
	r.Delete("/{orderID}/address", h.deleteAddress)
}

func (h *AddressHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, input, orderID, ok := h.decodeAddressMutation(w, r)
	if !ok {
		return
	}

	address, err := h.addresses.CreateAddress(ctx, services.CreateAddressCommand{
		OrderID:     orderID,
		CallerID:    identity.UID,
		CallerAdmin: identity.IsAdmin(),
		Address:     input,
	})
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, addressResponse{Address: buildAddressPayload(address)})
}

func (h *AddressHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, input, orderID, ok := h.decodeAddressMutation(w, r)
	if !ok {
		return
	}

	address, err := h.addresses.UpdateAddress(ctx, services.UpdateAddressCommand{
		OrderID:     orderID,
		CallerID:    identity.UID,
		CallerAdmin: identity.IsAdmin(),
		Address:     input,
	})
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, addressResponse{Address: buildAddressPayload(address)})
}

func (h *AddressHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service unavailable", http.StatusServiceUnavailable))
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

	if err := h.addresses.DeleteAddress(ctx, services.DeleteAddressCommand{
		OrderID:     orderID,
		CallerID:    identity.UID,
		CallerAdmin: identity.IsAdmin(),
	}); err != nil {
		writeAddressError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AddressHandlers) getAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service unavailable", http.StatusServiceUnavailable))
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

	address, err := h.addresses.GetAddress(ctx, services.GetAddressQuery{
		OrderID:     orderID,
		CallerID:    identity.UID,
		CallerAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeAddressError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, addressResponse{Address: buildAddressPayload(address)})
}

func (h *AddressHandlers) decodeAddressMutation(w http.ResponseWriter, r *http.Request) (*auth.Identity, services.AddressInput, string, bool) {
	ctx := r.Context()
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service unavailable", http.StatusServiceUnavailable))
		return nil, services.AddressInput{}, "", false
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return nil, services.AddressInput{}, "", false
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return nil, services.AddressInput{}, "", false
	}

	body, err := readLimitedBody(r, maxAddressBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return nil, services.AddressInput{}, "", false
	}

	var req addressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return nil, services.AddressInput{}, "", false
	}

	return identity, buildAddressInput(req), orderID, true
}

type addressResponse struct {
	Address addressPayload `json:"address"`
}

type addressPayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"orderId"`
	RecipientName string `json:"recipientName"`
	Phone         string `json:"phone"`
	Line1         string `json:"line1"`
	Line2         string `json:"line2,omitempty"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

func buildAddressInput(req addressRequest) services.AddressInput {
	return services.AddressInput{
		RecipientName: strings.TrimSpace(req.RecipientName),
		Phone:         strings.TrimSpace(req.Phone),
		Line1:         strings.TrimSpace(req.Line1),
		Line2:         strings.TrimSpace(req.Line2),
		City:          strings.TrimSpace(req.City),
		State:         strings.TrimSpace(req.State),
		PostalCode:    strings.TrimSpace(req.PostalCode),
		Country:       strings.TrimSpace(req.Country),
	}
}

func buildAddressPayload(address domain.ShippingAddress) addressPayload {
	return addressPayload{
		ID:            address.ID,
		OrderID:       address.OrderID,
		RecipientName: address.RecipientName,
		Phone:         address.Phone,
		Line1:         address.Line1,
		Line2:         address.Line2,
		City:          address.City,
		State:         address.State,
		PostalCode:    address.PostalCode,
		Country:       address.Country,
		CreatedAt:     formatTime(address.CreatedAt),
		UpdatedAt:     formatTime(address.UpdatedAt),
	}
}

func writeAddressError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAddressUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrAddressForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "caller may not access this address", http.StatusForbidden))
	case errors.Is(err, services.ErrAddressInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "shipping address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAddressAlreadyExists):
		httpx.WriteError(ctx, w, httpx.NewError("address_already_exists", "order already has a shipping address", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("address_error", "failed to process address request", http.StatusInternalServerError))
	}
}
