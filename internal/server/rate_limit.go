package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	"github.com/smallbiznis/eventreg/internal/ratelimit"
	"go.uber.org/zap"
)

var ErrRateLimited = errors.New("rate_limited")

const maxRateLimitPeekBytes = 64 << 10

type registrationLimiter interface {
	AllowParticipant(ctx context.Context, participant identitydomain.Participant) (ratelimit.Decision, error)
	AllowEvent(ctx context.Context, eventID snowflake.ID) (ratelimit.Decision, error)
}

// RegistrationRateLimit throttles registration attempts per event and per
// participant. Limiter failures fail open.
func RegistrationRateLimit(limiter registrationLimiter, regMetrics *obsmetrics.RegistrationMetrics, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		if eventID, err := parseID(c.Param("id")); err == nil {
			result, err := limiter.AllowEvent(ctx, eventID)
			if err != nil {
				log.Warn("event rate limit check failed", zap.String("event_id", eventID.String()), zap.Error(err))
			} else if !result.Allowed {
				regMetrics.IncRateLimited("event")
				rejectRateLimited(c, result)
				return
			}
		}

		participant, ok := peekParticipant(c)
		if ok {
			result, err := limiter.AllowParticipant(ctx, participant)
			if err != nil {
				log.Warn("participant rate limit check failed", zap.String("participant", participant.String()), zap.Error(err))
			} else if !result.Allowed {
				regMetrics.IncRateLimited("participant")
				rejectRateLimited(c, result)
				return
			}
		}

		c.Next()
	}
}

// peekParticipant reads the participant from the JSON body and restores the
// body for the handler.
func peekParticipant(c *gin.Context) (identitydomain.Participant, bool) {
	if c.Request.Body == nil {
		return identitydomain.Participant{}, false
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRateLimitPeekBytes))
	_ = c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return identitydomain.Participant{}, false
	}

	var body struct {
		Participant participantRequest `json:"participant"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return identitydomain.Participant{}, false
	}
	participant, err := body.Participant.toDomain()
	if err != nil {
		return identitydomain.Participant{}, false
	}
	return participant, true
}

func rejectRateLimited(c *gin.Context, result ratelimit.Decision) {
	if result.RetryAfter > 0 {
		seconds := int(math.Ceil(result.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	AbortWithError(c, ErrRateLimited)
}
