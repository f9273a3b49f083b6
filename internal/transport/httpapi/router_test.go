package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ArYaN9696/QuitQ/internal/domain"
	"github.com/ArYaN9696/QuitQ/internal/service/ledger"
	"github.com/ArYaN9696/QuitQ/internal/service/payment"
	"github.com/ArYaN9696/QuitQ/internal/storage/memory"
)

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

type RouterTestSuite struct {
	suite.Suite
	router http.Handler
}

func (s *RouterTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "http-test")

	store := memory.NewStore()
	orders := ledger.NewLedger(store, ledger.WithLogger(logger))
	payments := payment.NewReconciler(store, orders, payment.WithLogger(logger))
	repos := store.Repositories()

	handler := NewHandler(orders, payments, repos.Carts, repos.Catalog, logger)
	idem := NewIdempotency(memory.NewIdempotencyRepository(), time.Hour, logger)
	s.router = NewRouter(handler, idem, logger)
}

func (s *RouterTestSuite) do(method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, apiResponse) {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp apiResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func (s *RouterTestSuite) seedCart(userID string) {
	rec, _ := s.do(http.MethodPut, "/v1/products/mug", `{"name":"Mug","unit_price":"150"}`, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	rec, _ = s.do(http.MethodPut, "/v1/products/tea", `{"name":"Tea","unit_price":"50"}`, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodPut, "/v1/users/"+userID+"/cart/mug", `{"quantity":2}`, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	rec, _ = s.do(http.MethodPut, "/v1/users/"+userID+"/cart/tea", `{"quantity":2}`, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
}

func (s *RouterTestSuite) createOrder(userID string) string {
	s.seedCart(userID)
	rec, resp := s.do(http.MethodPost, "/v1/users/"+userID+"/orders",
		`{"shipping_address":"Lenina 1","payment_method":"card"}`, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.Require().Equal("Success", resp.Status)

	var order orderDTO
	s.Require().NoError(json.Unmarshal(resp.Data, &order))
	s.Equal("Placed", order.Status)
	s.Equal("400", order.TotalAmount.String())
	return order.ID
}

func (s *RouterTestSuite) TestOrderPaymentScenario() {
	orderID := s.createOrder("user-1")

	rec, resp := s.do(http.MethodPost, "/v1/orders/"+orderID+"/payments", `{"amount":"400","payment_method":"card"}`, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.Equal("Payment processed successfully.", resp.Message)

	var paid paymentDTO
	s.Require().NoError(json.Unmarshal(resp.Data, &paid))
	s.Equal("Completed", paid.Status)

	rec, resp = s.do(http.MethodPost, "/v1/orders/"+orderID+"/cancel", `{"reason":"oops"}`, nil)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("Failure", resp.Status)
	s.Equal(string(domain.FailureInvalidState), resp.Kind)

	rec, resp = s.do(http.MethodPost, "/v1/orders/"+orderID+"/payments", `{"amount":"300","payment_method":"card"}`, nil)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("Failure", resp.Status)
	s.Equal(string(domain.FailureAmountMismatch), resp.Kind)

	rec, resp = s.do(http.MethodGet, "/v1/orders/"+orderID+"/payments", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list []paymentDTO
	s.Require().NoError(json.Unmarshal(resp.Data, &list))
	s.Len(list, 1)

	rec, resp = s.do(http.MethodGet, "/v1/payments/"+paid.TransactionID+"/validate", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("Payment is valid.", resp.Message)

	rec, resp = s.do(http.MethodGet, "/v1/orders/"+orderID, "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var order orderDTO
	s.Require().NoError(json.Unmarshal(resp.Data, &order))
	s.Equal("Paid", order.Status)

	rec, _ = s.do(http.MethodPost, "/v1/orders/"+orderID+"/ship", "", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec, resp = s.do(http.MethodGet, "/v1/orders/"+orderID+"/history", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var history []timelineEventDTO
	s.Require().NoError(json.Unmarshal(resp.Data, &history))
	s.Require().Len(history, 3)
	s.Empty(history[0].From)
	s.Equal("Shipped", history[2].To)
}

func (s *RouterTestSuite) TestAmountMismatchIsUnprocessable() {
	orderID := s.createOrder("user-2")

	rec, resp := s.do(http.MethodPost, "/v1/orders/"+orderID+"/payments", `{"amount":"300","payment_method":"card"}`, nil)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal(string(domain.FailureAmountMismatch), resp.Kind)
}

func (s *RouterTestSuite) TestEmptyCart() {
	rec, resp := s.do(http.MethodPost, "/v1/users/nobody/orders", `{"shipping_address":"a","payment_method":"card"}`, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("cart is empty", resp.Message)
}

func (s *RouterTestSuite) TestGetCart() {
	rec, resp := s.do(http.MethodGet, "/v1/users/user-6/cart", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("Cart loaded.", resp.Message)
	s.JSONEq(`[]`, string(resp.Data))

	s.seedCart("user-6")
	rec, resp = s.do(http.MethodGet, "/v1/users/user-6/cart", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[{"product_ref":"mug","quantity":2},{"product_ref":"tea","quantity":2}]`, string(resp.Data))

	rec, _ = s.do(http.MethodPost, "/v1/users/user-6/orders", `{"shipping_address":"Lenina 1","payment_method":"card"}`, nil)
	s.Require().Equal(http.StatusCreated, rec.Code)
	rec, resp = s.do(http.MethodGet, "/v1/users/user-6/cart", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, string(resp.Data))
}

func (s *RouterTestSuite) TestSubCentPriceIsRejected() {
	rec, resp := s.do(http.MethodPut, "/v1/products/mug", `{"name":"Mug","unit_price":"33.333"}`, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(string(domain.FailureEmptyInput), resp.Kind)
	s.Contains(resp.Message, domain.ErrAmountPrecision.Error())

	orderID := s.createOrder("user-7")
	rec, resp = s.do(http.MethodPost, "/v1/orders/"+orderID+"/payments", `{"amount":"400.001","payment_method":"card"}`, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(string(domain.FailureEmptyInput), resp.Kind)
}

func (s *RouterTestSuite) TestUnknownProductInCart() {
	rec, resp := s.do(http.MethodPut, "/v1/users/user-3/cart/ghost", `{"quantity":1}`, nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(string(domain.FailureNotFound), resp.Kind)
}

func (s *RouterTestSuite) TestInvalidBody() {
	rec, resp := s.do(http.MethodPost, "/v1/users/user-4/orders", `{broken`, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Failure", resp.Status)
}

func (s *RouterTestSuite) TestOrderNotFound() {
	rec, resp := s.do(http.MethodGet, "/v1/orders/missing", "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("Order not found.", resp.Message)

	rec, resp = s.do(http.MethodGet, "/v1/payments/TXN-missing/validate", "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("Payment not found.", resp.Message)
}

func (s *RouterTestSuite) TestListOrdersOfUnknownUserIsEmpty() {
	rec, resp := s.do(http.MethodGet, "/v1/users/ghost/orders", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, string(resp.Data))
}

func (s *RouterTestSuite) TestIdempotentCreateOrderReplaysResponse() {
	s.seedCart("user-5")
	headers := map[string]string{HeaderIdempotencyKey: "key-1"}
	body := `{"shipping_address":"Lenina 1","payment_method":"card"}`

	first, firstResp := s.do(http.MethodPost, "/v1/users/user-5/orders", body, headers)
	s.Require().Equal(http.StatusCreated, first.Code)

	second, secondResp := s.do(http.MethodPost, "/v1/users/user-5/orders", body, headers)
	s.Equal(http.StatusCreated, second.Code)
	s.Equal("true", second.Header().Get(HeaderIdempotentReplay))
	s.JSONEq(string(firstResp.Data), string(secondResp.Data))

	rec, resp := s.do(http.MethodGet, "/v1/users/user-5/orders", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var orders []orderDTO
	s.Require().NoError(json.Unmarshal(resp.Data, &orders))
	s.Len(orders, 1)

	conflict, conflictResp := s.do(http.MethodPost, "/v1/users/user-5/orders",
		`{"shipping_address":"Other","payment_method":"card"}`, headers)
	s.Equal(http.StatusConflict, conflict.Code)
	s.Equal(string(domain.FailureConflict), conflictResp.Kind)
}

func (s *RouterTestSuite) TestUnknownRoute() {
	rec, resp := s.do(http.MethodGet, "/v1/nothing", "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("route not found", resp.Message)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

type brokenLedger struct {
	OrderLedger
}

func (brokenLedger) GetOrder(context.Context, string) (domain.Result[domain.Order], error) {
	return domain.Result[domain.Order]{}, errors.New("db is down")
}

func TestInfrastructureErrorIsInternal(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	handler := NewHandler(brokenLedger{}, nil, nil, nil, logger.WithField("component", "test"))
	router := NewRouter(handler, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders/o-1", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"status":"Failure","message":"internal error"}`, rec.Body.String())
}

func TestStatusForKind(t *testing.T) {
	cases := map[domain.FailureKind]int{
		domain.FailureNotFound:       http.StatusNotFound,
		domain.FailureInvalidState:   http.StatusConflict,
		domain.FailureConflict:       http.StatusConflict,
		domain.FailureAmountMismatch: http.StatusUnprocessableEntity,
		domain.FailureEmptyInput:     http.StatusBadRequest,
		domain.FailureNone:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, statusForKind(kind), kind)
	}
}
