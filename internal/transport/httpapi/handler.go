package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
	"github.com/ArYaN9696/QuitQ/internal/service/ledger"
	"github.com/ArYaN9696/QuitQ/internal/service/payment"
)

// OrderLedger: операции над заказами, доступные через API.
type OrderLedger interface {
	CreateOrder(ctx context.Context, req ledger.CreateOrderRequest) (domain.Result[domain.Order], error)
	GetUserOrders(ctx context.Context, userID string) ([]domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Result[domain.Order], error)
	GetOrderHistory(ctx context.Context, orderID string) (domain.Result[[]domain.TimelineEvent], error)
	CancelOrder(ctx context.Context, orderID, reason string) (domain.Result[domain.Order], error)
	ShipOrder(ctx context.Context, orderID string) (domain.Result[domain.Order], error)
	RefundOrder(ctx context.Context, orderID, reason string) (domain.Result[domain.Order], error)
}

// PaymentReconciler: операции над платежами, доступные через API.
type PaymentReconciler interface {
	ProcessPayment(ctx context.Context, req payment.ProcessPaymentRequest) (domain.Result[domain.Payment], error)
	ValidatePayment(ctx context.Context, transactionID string) (domain.Result[domain.Payment], error)
	GetPaymentsByOrderID(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// Handler обслуживает REST API заказов, платежей, корзины и каталога.
type Handler struct {
	orders   OrderLedger
	payments PaymentReconciler
	carts    domain.CartRepository
	catalog  domain.CatalogRepository
	logger   *log.Entry
}

// NewHandler собирает обработчики.
func NewHandler(orders OrderLedger, payments PaymentReconciler, carts domain.CartRepository, catalog domain.CatalogRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	return &Handler{
		orders:   orders,
		payments: payments,
		carts:    carts,
		catalog:  catalog,
		logger:   logger,
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithError(err).WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error("request failed")
	writeInternalError(w)
}

// CreateOrder обрабатывает POST /v1/users/{userID}/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeFailure(w, domain.FailureEmptyInput, err.Error())
		return
	}

	res, err := h.orders.CreateOrder(r.Context(), ledger.CreateOrderRequest{
		UserID:          chi.URLParam(r, "userID"),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, res, func(o domain.Order) any { return toOrderDTO(o) })
}

// ListUserOrders обрабатывает GET /v1/users/{userID}/orders.
func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.GetUserOrders(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Orders loaded.", toOrderDTOs(orders))
}

// GetOrder обрабатывает GET /v1/orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res, func(o domain.Order) any { return toOrderDTO(o) })
}

// GetOrderHistory обрабатывает GET /v1/orders/{orderID}/history.
func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.GetOrderHistory(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res, func(events []domain.TimelineEvent) any { return toTimelineDTOs(events) })
}

// CancelOrder обрабатывает POST /v1/orders/{orderID}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, orderID, reason string) (domain.Result[domain.Order], error) {
		return h.orders.CancelOrder(ctx, orderID, reason)
	})
}

// ShipOrder обрабатывает POST /v1/orders/{orderID}/ship.
func (h *Handler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, orderID, _ string) (domain.Result[domain.Order], error) {
		return h.orders.ShipOrder(ctx, orderID)
	})
}

// RefundOrder обрабатывает POST /v1/orders/{orderID}/refund.
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, orderID, reason string) (domain.Result[domain.Order], error) {
		return h.orders.RefundOrder(ctx, orderID, reason)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, orderID, reason string) (domain.Result[domain.Order], error)) {
	var req transitionRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeFailure(w, domain.FailureEmptyInput, err.Error())
		return
	}
	res, err := apply(r.Context(), chi.URLParam(r, "orderID"), strings.TrimSpace(req.Reason))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res, func(o domain.Order) any { return toOrderDTO(o) })
}

// ProcessPayment обрабатывает POST /v1/orders/{orderID}/payments.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeFailure(w, domain.FailureEmptyInput, err.Error())
		return
	}

	res, err := h.payments.ProcessPayment(r.Context(), payment.ProcessPaymentRequest{
		OrderID:       chi.URLParam(r, "orderID"),
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, res, func(p domain.Payment) any { return toPaymentDTO(p) })
}

// ListOrderPayments обрабатывает GET /v1/orders/{orderID}/payments.
func (h *Handler) ListOrderPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.GetPaymentsByOrderID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Payments loaded.", toPaymentDTOs(payments))
}

// ValidatePayment обрабатывает GET /v1/payments/{transactionID}/validate.
func (h *Handler) ValidatePayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.payments.ValidatePayment(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res, func(p domain.Payment) any { return toPaymentDTO(p) })
}

// GetCart обрабатывает GET /v1/users/{userID}/cart. Пустая корзина отдаётся как [].
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.Lines(r.Context(), strings.TrimSpace(chi.URLParam(r, "userID")))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Cart loaded.", toCartLineDTOs(lines))
}

// PutCartLine обрабатывает PUT /v1/users/{userID}/cart/{productRef}. quantity 0 удаляет строку.
func (h *Handler) PutCartLine(w http.ResponseWriter, r *http.Request) {
	var req cartLineRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeFailure(w, domain.FailureEmptyInput, err.Error())
		return
	}
	ctx := r.Context()
	line := domain.CartLine{
		UserID:     strings.TrimSpace(chi.URLParam(r, "userID")),
		ProductRef: strings.TrimSpace(chi.URLParam(r, "productRef")),
		Quantity:   req.Quantity,
	}
	if line.Quantity < 0 {
		writeFailure(w, domain.FailureEmptyInput, domain.ErrItemQtyInvalid.Error())
		return
	}
	if line.Quantity > 0 {
		if _, err := h.catalog.Get(ctx, line.ProductRef); err != nil {
			if kind, ok := domain.KindOf(err); ok {
				writeFailure(w, kind, err.Error())
				return
			}
			h.internalError(w, r, err)
			return
		}
	}
	if err := h.carts.Put(ctx, line); err != nil {
		h.internalError(w, r, err)
		return
	}
	lines, err := h.carts.Lines(ctx, line.UserID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Cart updated.", toCartLineDTOs(lines))
}

// PutProduct обрабатывает PUT /v1/products/{productRef}.
func (h *Handler) PutProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeFailure(w, domain.FailureEmptyInput, err.Error())
		return
	}
	product := domain.Product{
		Ref:       strings.TrimSpace(chi.URLParam(r, "productRef")),
		Name:      strings.TrimSpace(req.Name),
		UnitPrice: req.UnitPrice,
	}
	if errs := product.Validate(); len(errs) > 0 {
		writeFailure(w, domain.FailureEmptyInput, errors.Join(errs...).Error())
		return
	}
	if err := h.catalog.Upsert(r.Context(), product); err != nil {
		h.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product saved.", productDTO{Ref: product.Ref, Name: product.Name, UnitPrice: product.UnitPrice})
}
