package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

type createOrderRequest struct {
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

type paymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	TransactionID string          `json:"transaction_id"`
}

type cartLineRequest struct {
	Quantity int32 `json:"quantity"`
}

type productRequest struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type cartLineDTO struct {
	ProductRef string `json:"product_ref"`
	Quantity   int32  `json:"quantity"`
}

type productDTO struct {
	Ref       string          `json:"ref"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type orderItemDTO struct {
	ID          string          `json:"id"`
	ProductRef  string          `json:"product_ref"`
	ProductName string          `json:"product_name"`
	Quantity    int32           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type orderDTO struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress string          `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	Version         int64           `json:"version"`
	Items           []orderItemDTO  `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type paymentDTO struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	PaidAt        time.Time       `json:"paid_at"`
}

type timelineEventDTO struct {
	Type       string    `json:"type"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func toOrderDTO(order domain.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDTO{
			ID:          item.ID,
			ProductRef:  item.ProductRef,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal(),
		})
	}
	return orderDTO{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          order.Status.String(),
		TotalAmount:     order.TotalAmount,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
		Version:         order.Version,
		Items:           items,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toOrderDTOs(orders []domain.Order) []orderDTO {
	out := make([]orderDTO, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderDTO(order))
	}
	return out
}

func toPaymentDTO(payment domain.Payment) paymentDTO {
	return paymentDTO{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount,
		PaymentMethod: payment.PaymentMethod,
		TransactionID: payment.TransactionID,
		Status:        string(payment.Status),
		PaidAt:        payment.PaidAt,
	}
}

func toPaymentDTOs(payments []domain.Payment) []paymentDTO {
	out := make([]paymentDTO, 0, len(payments))
	for _, payment := range payments {
		out = append(out, toPaymentDTO(payment))
	}
	return out
}

func toTimelineDTOs(events []domain.TimelineEvent) []timelineEventDTO {
	out := make([]timelineEventDTO, 0, len(events))
	for _, event := range events {
		dto := timelineEventDTO{
			Type:       event.Type,
			To:         event.To.String(),
			Reason:     event.Reason,
			OccurredAt: event.Occurred,
		}
		if event.From.Valid() {
			dto.From = event.From.String()
		}
		out = append(out, dto)
	}
	return out
}

func toCartLineDTOs(lines []domain.CartLine) []cartLineDTO {
	out := make([]cartLineDTO, 0, len(lines))
	for _, line := range lines {
		out = append(out, cartLineDTO{ProductRef: line.ProductRef, Quantity: line.Quantity})
	}
	return out
}
