package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/observability/obscontext"
)

const (
	HeaderActorType = "X-Actor-Type"
	HeaderActorID   = "X-Actor-ID"
)

// ActorContext tags the request context with the calling actor so audit
// entries and logs can attribute the change. Unknown actor types fall back
// to participant.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorType := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorType)))
		switch auditdomain.ActorType(actorType) {
		case auditdomain.ActorTypeOperator, auditdomain.ActorTypeParticipant, auditdomain.ActorTypeSystem:
		default:
			actorType = string(auditdomain.ActorTypeParticipant)
		}
		if strings.HasPrefix(c.FullPath(), "/api/payments/webhooks/") {
			actorType = string(auditdomain.ActorTypeGateway)
		}

		ctx := obscontext.WithActor(c.Request.Context(), actorType, strings.TrimSpace(c.GetHeader(HeaderActorID)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
