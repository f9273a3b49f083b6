package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

// helper для создания базового заказа: A x2 по 100 и B x1 по 200.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:              "order-1",
		UserID:          "user-1",
		ShippingAddress: "221B Baker Street",
		PaymentMethod:   "UPI",
		Status:          domain.OrderStatusPlaced,
		TotalAmount:     decimal.NewFromInt(400),
		Items: []domain.OrderItem{
			{ID: "item-1", ProductRef: "A", Quantity: 2, UnitPrice: decimal.NewFromInt(100), CreatedAt: now},
			{ID: "item-2", ProductRef: "B", Quantity: 1, UnitPrice: decimal.NewFromInt(200), CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{name: "no user", mut: func(o *domain.Order) { o.UserID = "" }, want: domain.ErrUserRequired},
		{name: "no address", mut: func(o *domain.Order) { o.ShippingAddress = "" }, want: domain.ErrShippingAddressRequired},
		{name: "no payment method", mut: func(o *domain.Order) { o.PaymentMethod = "" }, want: domain.ErrPaymentMethodRequired},
		{name: "negative amount", mut: func(o *domain.Order) { o.TotalAmount = decimal.NewFromInt(-1) }, want: domain.ErrAmountNegative},
		{name: "no items", mut: func(o *domain.Order) { o.Items = nil }, want: domain.ErrItemsRequired},
		{name: "qty invalid", mut: func(o *domain.Order) { o.Items[0].Quantity = 0 }, want: domain.ErrItemQtyInvalid},
		{name: "price invalid", mut: func(o *domain.Order) { o.Items[1].UnitPrice = decimal.NewFromInt(-5) }, want: domain.ErrItemPriceInvalid},
		{name: "total mismatch", mut: func(o *domain.Order) { o.TotalAmount = decimal.NewFromInt(999) }, want: domain.ErrOrderTotalMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
			if !errors.Is(errors.Join(errs...), tc.want) {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestSumItemsUsesDecimalArithmetic(t *testing.T) {
	items := []domain.OrderItem{
		{Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("0.20")},
	}
	if got := domain.SumItems(items); !got.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("expected 0.50, got %s", got)
	}
}

func TestCanTransition(t *testing.T) {
	all := []domain.OrderStatus{
		domain.OrderStatusPlaced,
		domain.OrderStatusPaid,
		domain.OrderStatusShipped,
		domain.OrderStatusRefunded,
		domain.OrderStatusCancelled,
	}
	allowed := map[[2]domain.OrderStatus]bool{
		{domain.OrderStatusPlaced, domain.OrderStatusPaid}:      true,
		{domain.OrderStatusPlaced, domain.OrderStatusCancelled}: true,
		{domain.OrderStatusPaid, domain.OrderStatusShipped}:     true,
		{domain.OrderStatusPaid, domain.OrderStatusRefunded}:    true,
	}

	// Проверяем всю матрицу пар, а не только разрешённые переходы.
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]domain.OrderStatus{from, to}]
			if got := domain.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[domain.OrderStatus]bool{
		domain.OrderStatusPlaced:    false,
		domain.OrderStatusPaid:      false,
		domain.OrderStatusShipped:   true,
		domain.OrderStatusRefunded:  true,
		domain.OrderStatusCancelled: true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestOrderTransition(t *testing.T) {
	order := makeOrder()
	at := order.CreatedAt.Add(time.Minute)
	total := order.TotalAmount

	if err := order.Transition(domain.OrderStatusCancelled, at); err != nil {
		t.Fatalf("cancel placed order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected Cancelled, got %s", order.Status)
	}
	if !order.UpdatedAt.Equal(at) {
		t.Fatalf("expected updated_at %v, got %v", at, order.UpdatedAt)
	}
	if !order.TotalAmount.Equal(total) || len(order.Items) != 2 {
		t.Fatal("transition must not touch total or items")
	}

	err := order.Transition(domain.OrderStatusCancelled, at)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double cancel, got %v", err)
	}
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) || trErr.From != domain.OrderStatusCancelled || trErr.To != domain.OrderStatusCancelled {
		t.Fatalf("unexpected transition error %#v", err)
	}
	if err.Error() != "cannot transition order from Cancelled to Cancelled" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    domain.OrderStatus
		wantErr bool
	}{
		{raw: "Placed", want: domain.OrderStatusPlaced},
		{raw: "paid", want: domain.OrderStatusPaid},
		{raw: " SHIPPED ", want: domain.OrderStatusShipped},
		{raw: "cancelled", want: domain.OrderStatusCancelled},
		{raw: "delivered", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := domain.ParseOrderStatus(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnknownOrderStatus) {
					t.Fatalf("expected ErrUnknownOrderStatus, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOrderStatusString(t *testing.T) {
	if got := domain.OrderStatusCancelled.String(); got != "Cancelled" {
		t.Fatalf("got %q", got)
	}
	if got := domain.OrderStatus(42).String(); got != "OrderStatus(42)" {
		t.Fatalf("got %q", got)
	}
	if domain.OrderStatus(42).Valid() {
		t.Fatal("unknown status must be invalid")
	}
}
