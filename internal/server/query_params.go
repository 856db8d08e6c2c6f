package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// parseID accepts a positive snowflake in its decimal string form.
func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, ErrInvalidRequest
	}
	return id, nil
}

// pathID reads the :id route parameter, aborting with invalid_id when it is
// not a snowflake.
func pathID(c *gin.Context) (snowflake.ID, bool) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}

// timeParam parses an optional RFC 3339 query value; a bad value is reported
// against field as invalid_<field>.
func timeParam(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, newValidationError(field, "invalid_"+field, "invalid "+strings.ReplaceAll(field, "_", " "))
	}
	return &parsed, nil
}
