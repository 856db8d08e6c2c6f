package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	"github.com/smallbiznis/eventreg/internal/observability/obscontext"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	registrationdomain "github.com/smallbiznis/eventreg/internal/registration/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeCatalogService struct {
	event catalogdomain.Event
	err   error
}

func (f *fakeCatalogService) Create(ctx context.Context, req catalogdomain.CreateEventRequest) (catalogdomain.Event, error) {
	if f.err != nil {
		return catalogdomain.Event{}, f.err
	}
	f.event.Name = req.Name
	return f.event, nil
}

func (f *fakeCatalogService) Get(ctx context.Context, id snowflake.ID) (catalogdomain.Event, error) {
	return f.event, f.err
}

func (f *fakeCatalogService) List(ctx context.Context, req catalogdomain.ListEventRequest) (catalogdomain.ListEventResponse, error) {
	return catalogdomain.ListEventResponse{Events: []catalogdomain.Event{f.event}}, f.err
}

func (f *fakeCatalogService) UpdateStatus(ctx context.Context, id snowflake.ID, status catalogdomain.EventStatus) (catalogdomain.Event, error) {
	if f.err != nil {
		return catalogdomain.Event{}, f.err
	}
	f.event.Status = status
	return f.event, nil
}

type fakeRegistrationService struct {
	createReq    registrationdomain.CreateRegistrationRequest
	createErr    error
	bulkItems    []registrationdomain.BulkItem
	bulkErr      error
	cancelID     snowflake.ID
	cancelRefund bool
}

func (f *fakeRegistrationService) CreateRegistration(ctx context.Context, req registrationdomain.CreateRegistrationRequest) (registrationdomain.Registration, error) {
	f.createReq = req
	if f.createErr != nil {
		return registrationdomain.Registration{}, f.createErr
	}
	return registrationdomain.Registration{
		ID:              snowflake.ID(900),
		EventID:         req.EventID,
		ParticipantKind: req.Participant.Kind,
		ParticipantID:   req.Participant.ID,
		Status:          registrationdomain.StatusConfirmed,
	}, nil
}

func (f *fakeRegistrationService) CancelRegistration(ctx context.Context, id snowflake.ID, attemptRefund bool) (registrationdomain.CancelResult, error) {
	f.cancelID = id
	f.cancelRefund = attemptRefund
	return registrationdomain.CancelResult{
		Registration: registrationdomain.Registration{ID: id, Status: registrationdomain.StatusCancelled},
	}, nil
}

func (f *fakeRegistrationService) BulkRegister(ctx context.Context, items []registrationdomain.BulkItem) ([]registrationdomain.BulkResult, error) {
	f.bulkItems = items
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	results := make([]registrationdomain.BulkResult, len(items))
	for i := range items {
		results[i] = registrationdomain.BulkResult{Index: i}
	}
	return results, nil
}

func (f *fakeRegistrationService) Get(ctx context.Context, id snowflake.ID) (registrationdomain.Registration, error) {
	return registrationdomain.Registration{}, registrationdomain.ErrRegistrationNotFound
}

func (f *fakeRegistrationService) List(ctx context.Context, req registrationdomain.ListRegistrationRequest) (registrationdomain.ListRegistrationResponse, error) {
	return registrationdomain.ListRegistrationResponse{}, nil
}

type fakePaymentService struct {
	callbackProvider string
	callbackActor    string
	callbackErr      error
	refundErr        error
}

func (f *fakePaymentService) CreatePayment(ctx context.Context, tx *gorm.DB, req paymentdomain.CreatePaymentRequest) (paymentdomain.Payment, error) {
	return paymentdomain.Payment{}, nil
}

func (f *fakePaymentService) Compensate(ctx context.Context, payment paymentdomain.Payment, reason string) error {
	return nil
}

func (f *fakePaymentService) Refund(ctx context.Context, paymentID snowflake.ID, reason string) (paymentdomain.RefundResult, error) {
	if f.refundErr != nil {
		return paymentdomain.RefundResult{}, f.refundErr
	}
	return paymentdomain.RefundResult{RefundTransactionID: "refund_" + reason}, nil
}

func (f *fakePaymentService) ProcessCallback(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	f.callbackProvider = provider
	f.callbackActor, _ = obscontext.ActorFromContext(ctx)
	return f.callbackErr
}

func (f *fakePaymentService) Get(ctx context.Context, id snowflake.ID) (paymentdomain.Payment, error) {
	return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
}

func (f *fakePaymentService) RetryCompensations(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

type testServer struct {
	router       *gin.Engine
	catalog      *fakeCatalogService
	registration *fakeRegistrationService
	payment      *fakePaymentService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		router:       router,
		catalog:      &fakeCatalogService{event: catalogdomain.Event{ID: snowflake.ID(10), Status: catalogdomain.EventStatusDraft}},
		registration: &fakeRegistrationService{},
		payment:      &fakePaymentService{},
	}
	NewServer(ServerParams{
		Gin:             router,
		CatalogSvc:      ts.catalog,
		RegistrationSvc: ts.registration,
		PaymentSvc:      ts.payment,
	})
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestCreateRegistrationHandler(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/events/10/registrations",
		`{"participant":{"kind":"individual","id":"42"},"amount":500,"payment_mode":"OFFLINE"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	assert.Equal(t, snowflake.ID(10), ts.registration.createReq.EventID)
	assert.Equal(t, identitydomain.Individual(42), ts.registration.createReq.Participant)
	assert.EqualValues(t, 500, ts.registration.createReq.RequestedAmount)
	assert.Equal(t, paymentdomain.ModeOffline, ts.registration.createReq.Mode)

	var body struct {
		Data registrationdomain.Registration `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, registrationdomain.StatusConfirmed, body.Data.Status)
}

func TestCreateRegistrationHandlerMapsDomainErrors(t *testing.T) {
	ts := newTestServer(t)

	ts.registration.createErr = registrationdomain.ErrCapacityReached
	resp := ts.do(http.MethodPost, "/api/events/10/registrations", `{"participant":{"kind":"team","id":"7"}}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "capacity_reached", decodeError(t, resp).Code)

	resp = ts.do(http.MethodPost, "/api/events/10/registrations", `{"participant":{"kind":"robot","id":"7"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_participant", decodeError(t, resp).Code)

	resp = ts.do(http.MethodPost, "/api/events/abc/registrations", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_id", decodeError(t, resp).Code)
}

func TestBulkRegisterHandler(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/registrations/bulk", `{"items":[
		{"event_id":"10","participant":{"kind":"individual","id":"1"}},
		{"event_id":"11","participant":{"kind":"team","id":"2"}}
	]}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.Len(t, ts.registration.bulkItems, 2)
	assert.Equal(t, identitydomain.Team(2), ts.registration.bulkItems[1].Participant)

	ts.registration.bulkErr = &registrationdomain.BulkItemError{Index: 1, Err: registrationdomain.ErrBulkPaidEvent}
	resp = ts.do(http.MethodPost, "/api/registrations/bulk", `{"items":[
		{"event_id":"10","participant":{"kind":"individual","id":"1"}},
		{"event_id":"11","participant":{"kind":"individual","id":"2"}}
	]}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "bulk_paid_event", payload.Code)
	require.NotNil(t, payload.Index)
	assert.Equal(t, 1, *payload.Index)

	resp = ts.do(http.MethodPost, "/api/registrations/bulk", `{"items":[{"event_id":"x","participant":{"kind":"individual","id":"1"}}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	payload = decodeError(t, resp)
	require.NotNil(t, payload.Index)
	assert.Equal(t, 0, *payload.Index)
}

func TestCancelRegistrationHandlerDefaultsToRefund(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/registrations/55/cancel", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, snowflake.ID(55), ts.registration.cancelID)
	assert.True(t, ts.registration.cancelRefund)

	resp = ts.do(http.MethodPost, "/api/registrations/55/cancel", `{"refund":false}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, ts.registration.cancelRefund)

	resp = ts.do(http.MethodGet, "/api/registrations/55", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "registration_not_found", decodeError(t, resp).Code)
}

func TestEventHandlers(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/events", `{"name":" Spring Run ","capacity":100}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = ts.do(http.MethodPatch, "/api/events/10/status", `{"status":"published"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, catalogdomain.EventStatusPublished, ts.catalog.event.Status)

	resp = ts.do(http.MethodPatch, "/api/events/10/status", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_status", decodeError(t, resp).Code)

	ts.catalog.err = catalogdomain.ErrInvalidTransition
	resp = ts.do(http.MethodPatch, "/api/events/10/status", `{"status":"draft"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestPaymentHandlers(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/payments/webhooks/mock", `{"id":"evt_1"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "mock", ts.payment.callbackProvider)
	assert.Equal(t, "gateway", ts.payment.callbackActor)

	resp = ts.do(http.MethodPost, "/api/payments/webhooks/mock", strings.Repeat("x", maxWebhookPayload+1))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "payload_too_large", decodeError(t, resp).Code)

	ts.payment.callbackErr = paymentdomain.ErrInvalidSignature
	resp = ts.do(http.MethodPost, "/api/payments/webhooks/mock", `{"id":"evt_1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_signature", decodeError(t, resp).Code)

	resp = ts.do(http.MethodPost, "/api/payments/77/refund", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "refund_operator_refund")

	ts.payment.refundErr = paymentdomain.ErrPaymentAlreadyRefunded
	resp = ts.do(http.MethodPost, "/api/payments/77/refund", `{"reason":"duplicate"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "payment_already_refunded", decodeError(t, resp).Code)

	resp = ts.do(http.MethodGet, "/api/payments/77", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
