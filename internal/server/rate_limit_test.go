package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	"github.com/smallbiznis/eventreg/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	eventAllowed       bool
	participantAllowed bool
	err                error

	participants []identitydomain.Participant
	events       []snowflake.ID
}

func (f *fakeLimiter) AllowParticipant(ctx context.Context, participant identitydomain.Participant) (ratelimit.Decision, error) {
	f.participants = append(f.participants, participant)
	if f.err != nil {
		return ratelimit.Decision{}, f.err
	}
	return ratelimit.Decision{Allowed: f.participantAllowed, RetryAfter: 1500 * time.Millisecond}, nil
}

func (f *fakeLimiter) AllowEvent(ctx context.Context, eventID snowflake.ID) (ratelimit.Decision, error) {
	f.events = append(f.events, eventID)
	if f.err != nil {
		return ratelimit.Decision{}, f.err
	}
	return ratelimit.Decision{Allowed: f.eventAllowed}, nil
}

func newRateLimitedRouter(limiter registrationLimiter, regMetrics *obsmetrics.RegistrationMetrics) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	seenBody := new(string)
	router.POST("/events/:id/registrations", RegistrationRateLimit(limiter, regMetrics, nil), func(c *gin.Context) {
		raw, _ := io.ReadAll(c.Request.Body)
		*seenBody = string(raw)
		c.Status(http.StatusCreated)
	})
	return router, seenBody
}

const rateLimitBody = `{"participant":{"kind":"individual","id":"42"},"amount":0}`

func TestRegistrationRateLimitAllowsAndRestoresBody(t *testing.T) {
	limiter := &fakeLimiter{eventAllowed: true, participantAllowed: true}
	router, seenBody := newRateLimitedRouter(limiter, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/events/10/registrations", strings.NewReader(rateLimitBody)))

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, rateLimitBody, *seenBody)
	require.Len(t, limiter.events, 1)
	assert.Equal(t, snowflake.ID(10), limiter.events[0])
	require.Len(t, limiter.participants, 1)
	assert.Equal(t, identitydomain.ParticipantIndividual, limiter.participants[0].Kind)
	assert.Equal(t, snowflake.ID(42), limiter.participants[0].ID)
}

func TestRegistrationRateLimitRejectsParticipant(t *testing.T) {
	registry := prometheus.NewRegistry()
	limiter := &fakeLimiter{eventAllowed: true, participantAllowed: false}
	router, seenBody := newRateLimitedRouter(limiter, obsmetrics.NewRegistrationMetricsForTest(registry))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/events/10/registrations", strings.NewReader(rateLimitBody)))

	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "2", resp.Header().Get("Retry-After"))
	assert.Empty(t, *seenBody)
	assert.Equal(t, "rate_limited", decodeError(t, resp).Code)

	families, err := registry.Gather()
	require.NoError(t, err)
	found := false
	for _, family := range families {
		if family.GetName() == "eventreg_rate_limited_total" {
			found = true
			assert.Equal(t, float64(1), family.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestRegistrationRateLimitRejectsEventBeforeParticipant(t *testing.T) {
	limiter := &fakeLimiter{eventAllowed: false, participantAllowed: true}
	router, _ := newRateLimitedRouter(limiter, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/events/10/registrations", strings.NewReader(rateLimitBody)))

	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Empty(t, limiter.participants)
}

func TestRegistrationRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	router, seenBody := newRateLimitedRouter(limiter, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/events/10/registrations", strings.NewReader(rateLimitBody)))

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, rateLimitBody, *seenBody)
}

func TestRegistrationRateLimitSkipsUnparsableParticipant(t *testing.T) {
	limiter := &fakeLimiter{eventAllowed: true, participantAllowed: false}
	router, seenBody := newRateLimitedRouter(limiter, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/events/10/registrations", strings.NewReader(`not json`)))

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "not json", *seenBody)
	assert.Empty(t, limiter.participants)
}
