package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/eventreg/internal/audit"
	"github.com/smallbiznis/eventreg/internal/capacity"
	"github.com/smallbiznis/eventreg/internal/catalog"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/dbtest"
	"github.com/smallbiznis/eventreg/internal/identity"
	"github.com/smallbiznis/eventreg/internal/ledger"
	"github.com/smallbiznis/eventreg/internal/notification"
	"github.com/smallbiznis/eventreg/internal/payment"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/mock"
	"github.com/smallbiznis/eventreg/internal/registration"
	"github.com/smallbiznis/eventreg/internal/seed"
	"github.com/smallbiznis/eventreg/internal/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	node    *snowflake.Node
	baseURL string
	client  *http.Client
}

func startEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbConn := dbtest.Open(t)
	node := dbtest.Node(t)
	require.NoError(t, seed.EnsureLedgerAccounts(dbConn, node))

	policy := config.DefaultRegistrationPolicy()
	policy.LockWaitTimeout = time.Minute
	cfg := config.Config{
		Environment: "test",
		Payments: config.PaymentConfig{
			Gateway:        mock.Provider,
			WebhookSecrets: map[string]string{mock.Provider: "secret"},
		},
		Notify: config.NotifyConfig{Transports: []string{"log"}},
	}

	var srv *server.Server
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, dbConn, node, zap.NewNop(), config.NewStaticPolicyHolder(policy)),
		identity.Module,
		catalog.Module,
		audit.Module,
		ledger.Module,
		capacity.Module,
		payment.Module,
		notification.Module,
		registration.Module,
		fx.Provide(func() *gin.Engine {
			r := gin.New()
			r.Use(server.ErrorHandlingMiddleware())
			return r
		}),
		fx.Provide(server.NewServer),
		fx.Populate(&srv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Start(ctx))

	httpSrv := httptest.NewServer(srv.Engine())
	t.Cleanup(func() {
		httpSrv.Close()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	})

	return &testEnv{
		db:      dbConn,
		node:    node,
		baseURL: httpSrv.URL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func TestE2E_EventLifecycleAndWaitlist(t *testing.T) {
	env := startEnv(t)

	eventID := env.createPublishedEvent(t, map[string]any{
		"name":              "Go Meetup",
		"capacity":          2,
		"currency":          "USD",
		"registration_type": "individual",
	})

	var confirmed []string
	for i := 0; i < 2; i++ {
		reg := env.register(t, eventID, dbtest.SeedUser(t, env.db, env.node), 0, false, http.StatusCreated)
		require.Equal(t, "confirmed", reg.Status)
		confirmed = append(confirmed, reg.ID)
	}

	waitlisted := env.register(t, eventID, dbtest.SeedUser(t, env.db, env.node), 0, false, http.StatusCreated)
	require.Equal(t, "waitlisted", waitlisted.Status)

	resp, body := doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/events/"+eventID+"/registrations", map[string]any{
		"participant":   map[string]any{"kind": "individual", "id": dbtest.SeedUser(t, env.db, env.node).String()},
		"amount":        0,
		"skip_waitlist": true,
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	require.Equal(t, "capacity_reached", errorCode(t, body))

	resp, body = doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/registrations/"+confirmed[0]+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var cancelled struct {
		Data struct {
			Registration registrationResponse `json:"registration"`
			Refunded     bool                 `json:"refunded"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &cancelled))
	require.Equal(t, "cancelled", cancelled.Data.Registration.Status)
	require.False(t, cancelled.Data.Refunded)

	require.EqualValues(t, 1, countRows(t, env.db, "registrations", "event_id = ? AND status = ?", mustParseID(t, eventID), "confirmed"))
	require.EqualValues(t, 1, countRows(t, env.db, "registrations", "event_id = ? AND status = ?", mustParseID(t, eventID), "waitlisted"))

	// the freed seat goes to a new registration; waitlisted entries stay put
	next := env.register(t, eventID, dbtest.SeedUser(t, env.db, env.node), 0, false, http.StatusCreated)
	require.Equal(t, "confirmed", next.Status)
}

func TestE2E_PaidRegistrationRefundOnCancel(t *testing.T) {
	env := startEnv(t)

	eventID := env.createPublishedEvent(t, map[string]any{
		"name":              "Paid Workshop",
		"capacity":          5,
		"fee":               2500,
		"currency":          "USD",
		"is_paid":           true,
		"registration_type": "individual",
	})
	userID := dbtest.SeedUser(t, env.db, env.node)

	resp, body := doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/events/"+eventID+"/registrations", map[string]any{
		"participant": map[string]any{"kind": "individual", "id": userID.String()},
		"amount":      1000,
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	require.Equal(t, "amount_mismatch", errorCode(t, body))

	reg := env.register(t, eventID, userID, 2500, false, http.StatusCreated)
	require.Equal(t, "confirmed", reg.Status)
	require.NotEmpty(t, reg.PaymentID)
	require.EqualValues(t, 1, countRows(t, env.db, "payments", "id = ? AND status = ?", mustParseID(t, reg.PaymentID), "completed"))

	resp, body = doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/events/"+eventID+"/registrations", map[string]any{
		"participant": map[string]any{"kind": "individual", "id": userID.String()},
		"amount":      2500,
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	require.Equal(t, "duplicate_registration", errorCode(t, body))

	resp, body = doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/registrations/"+reg.ID+"/cancel", map[string]any{"refund": true}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var cancelled struct {
		Data struct {
			Registration    registrationResponse `json:"registration"`
			Refunded        bool                 `json:"refunded"`
			RefundAttempted bool                 `json:"refund_attempted"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &cancelled))
	require.True(t, cancelled.Data.RefundAttempted)
	require.True(t, cancelled.Data.Refunded)
	require.Equal(t, "refunded", cancelled.Data.Registration.Status)
	require.EqualValues(t, 1, countRows(t, env.db, "payments", "id = ? AND status = ?", mustParseID(t, reg.PaymentID), "refunded"))

	// a second cancel reports the final state without another refund
	resp, body = doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/registrations/"+reg.ID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Contains(t, string(body), `"already_final":true`)
}

func TestE2E_BulkRegistrationIsAllOrNothing(t *testing.T) {
	env := startEnv(t)

	open := env.createPublishedEvent(t, map[string]any{
		"name":              "Open Day",
		"capacity":          10,
		"currency":          "USD",
		"registration_type": "individual",
	})
	tight := env.createPublishedEvent(t, map[string]any{
		"name":              "Small Room",
		"capacity":          1,
		"currency":          "USD",
		"registration_type": "individual",
	})

	item := func(eventID string, userID snowflake.ID) map[string]any {
		return map[string]any{
			"event_id":    eventID,
			"participant": map[string]any{"kind": "individual", "id": userID.String()},
		}
	}
	repeat := dbtest.SeedUser(t, env.db, env.node)

	resp, body := doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/registrations/bulk", map[string]any{
		"items": []any{
			item(open, repeat),
			item(tight, dbtest.SeedUser(t, env.db, env.node)),
			item(open, repeat),
		},
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	require.Equal(t, "duplicate_registration", errorCode(t, body))
	require.Contains(t, string(body), `"index":2`)
	require.EqualValues(t, 0, countRows(t, env.db, "registrations", "1 = 1"))

	resp, body = doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/registrations/bulk", map[string]any{
		"items": []any{
			item(open, repeat),
			item(tight, dbtest.SeedUser(t, env.db, env.node)),
			item(tight, dbtest.SeedUser(t, env.db, env.node)),
		},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	require.EqualValues(t, 2, countRows(t, env.db, "registrations", "status = ?", "confirmed"))
	require.EqualValues(t, 1, countRows(t, env.db, "registrations", "event_id = ? AND status = ?", mustParseID(t, tight), "waitlisted"))
}

func TestE2E_AuditLog(t *testing.T) {
	env := startEnv(t)

	eventID := env.createPublishedEvent(t, map[string]any{
		"name":              "Audited Event",
		"capacity":          3,
		"currency":          "USD",
		"registration_type": "individual",
	})
	reg := env.register(t, eventID, dbtest.SeedUser(t, env.db, env.node), 0, false, http.StatusCreated)

	resp, body := doJSON(t, env.client, http.MethodGet, env.baseURL+"/api/audit_logs?action=registration.created", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var logs struct {
		Data []struct {
			ActorType string  `json:"actor_type"`
			ActorID   *string `json:"actor_id"`
			Action    string  `json:"action"`
			TargetID  *string `json:"target_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &logs))
	require.Len(t, logs.Data, 1)
	require.Equal(t, "participant", logs.Data[0].ActorType)
	require.NotNil(t, logs.Data[0].TargetID)
	require.Equal(t, reg.ID, *logs.Data[0].TargetID)

	require.EqualValues(t, 1, countRows(t, env.db, "audit_logs", "action = ? AND actor_type = ? AND actor_id = ?", "event.status_changed", "operator", "op-1"))
}

type registrationResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
}

var operatorHeaders = map[string]string{
	server.HeaderActorType: "operator",
	server.HeaderActorID:   "op-1",
}

func (e *testEnv) createPublishedEvent(t *testing.T, req map[string]any) string {
	t.Helper()

	resp, body := doJSON(t, e.client, http.MethodPost, e.baseURL+"/api/events", req, operatorHeaders)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, "draft", created.Data.Status)

	resp, body = doJSON(t, e.client, http.MethodPatch, e.baseURL+"/api/events/"+created.Data.ID+"/status", map[string]any{"status": "published"}, operatorHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	return created.Data.ID
}

func (e *testEnv) register(t *testing.T, eventID string, userID snowflake.ID, amount int64, skipWaitlist bool, wantStatus int) registrationResponse {
	t.Helper()

	resp, body := doJSON(t, e.client, http.MethodPost, e.baseURL+"/api/events/"+eventID+"/registrations", map[string]any{
		"participant":   map[string]any{"kind": "individual", "id": userID.String()},
		"amount":        amount,
		"skip_waitlist": skipWaitlist,
	}, nil)
	require.Equal(t, wantStatus, resp.StatusCode, string(body))

	var created struct {
		Data registrationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	return created.Data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload.Error.Code
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func mustParseID(t *testing.T, value string) snowflake.ID {
	t.Helper()
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		t.Fatalf("invalid snowflake id: %s", value)
	}
	return parsed
}

func doJSON(t *testing.T, client *http.Client, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
