package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/capacity"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	registrationdomain "github.com/smallbiznis/eventreg/internal/registration/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Index   *int              `json:"index,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type errorClass struct {
	status  int
	typ     string
	message string
}

var (
	classValidation  = errorClass{http.StatusBadRequest, "validation_error", "validation error"}
	classConflict    = errorClass{http.StatusConflict, "conflict", "conflict"}
	classNotFound    = errorClass{http.StatusNotFound, "not_found", "not found"}
	classDependency  = errorClass{http.StatusBadGateway, "dependency_error", "upstream dependency failed"}
	classUnavailable = errorClass{http.StatusServiceUnavailable, "service_unavailable", "service unavailable"}
	classRateLimited = errorClass{http.StatusTooManyRequests, "rate_limited", "too many requests"}
	classInternal    = errorClass{http.StatusInternalServerError, "internal_error", "internal server error"}
)

// domainErrors is matched in order with errors.Is; the sentinel text is the
// stable code returned to clients.
var domainErrors = []struct {
	err   error
	class errorClass
}{
	{registrationdomain.ErrAmountMismatch, classValidation},
	{paymentdomain.ErrAmountMismatch, classValidation},
	{registrationdomain.ErrTypeMismatch, classValidation},
	{registrationdomain.ErrBulkPaidEvent, classValidation},
	{registrationdomain.ErrBulkEmpty, classValidation},
	{registrationdomain.ErrBulkTooLarge, classValidation},
	{registrationdomain.ErrInvalidStatus, classValidation},
	{identitydomain.ErrInvalidParticipant, classValidation},
	{paymentdomain.ErrInvalidMode, classValidation},
	{paymentdomain.ErrInvalidSignature, classValidation},
	{paymentdomain.ErrInvalidPayload, classValidation},
	{paymentdomain.ErrInvalidEvent, classValidation},
	{paymentdomain.ErrInvalidPayment, classValidation},
	{catalogdomain.ErrInvalidName, classValidation},
	{catalogdomain.ErrInvalidCapacity, classValidation},
	{catalogdomain.ErrInvalidFee, classValidation},
	{catalogdomain.ErrInvalidCurrency, classValidation},
	{catalogdomain.ErrInvalidRegistrationType, classValidation},
	{catalogdomain.ErrInvalidStatus, classValidation},
	{auditdomain.ErrInvalidPageToken, classValidation},
	{auditdomain.ErrInvalidTimeRange, classValidation},
	{auditdomain.ErrInvalidAction, classValidation},

	{registrationdomain.ErrEventClosed, classConflict},
	{registrationdomain.ErrCapacityReached, classConflict},
	{registrationdomain.ErrDuplicateRegistration, classConflict},
	{catalogdomain.ErrInvalidTransition, classConflict},
	{paymentdomain.ErrPaymentNotRefundable, classConflict},
	{paymentdomain.ErrPaymentAlreadyRefunded, classConflict},
	{ErrConflict, classConflict},

	{catalogdomain.ErrEventNotFound, classNotFound},
	{identitydomain.ErrParticipantNotFound, classNotFound},
	{registrationdomain.ErrRegistrationNotFound, classNotFound},
	{paymentdomain.ErrPaymentNotFound, classNotFound},
	{paymentdomain.ErrProviderNotFound, classNotFound},
	{ErrNotFound, classNotFound},

	{paymentdomain.ErrPaymentFailed, classDependency},
	{paymentdomain.ErrRefundFailed, classDependency},

	{capacity.ErrLockTimeout, classUnavailable},
	{paymentdomain.ErrGatewayNotConfigured, classUnavailable},
	{paymentdomain.ErrInvalidConfig, classUnavailable},
	{ErrServiceUnavailable, classUnavailable},

	{ErrRateLimited, classRateLimited},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return classInternal.status, errorPayload{Type: classInternal.typ, Message: classInternal.message}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		payload := errorPayload{
			Type:    classValidation.typ,
			Message: classValidation.message,
			Errors:  vErr.Errors,
		}
		if len(vErr.Errors) > 0 {
			payload.Code = vErr.Errors[0].Code
		}
		return http.StatusBadRequest, payload
	}

	var index *int
	var itemErr *registrationdomain.BulkItemError
	if errors.As(err, &itemErr) {
		i := itemErr.Index
		index = &i
	}

	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest, errorPayload{
			Type:    classValidation.typ,
			Code:    ErrInvalidRequest.Error(),
			Message: "invalid request",
			Index:   index,
		}
	}

	for _, candidate := range domainErrors {
		if !errors.Is(err, candidate.err) {
			continue
		}
		payload := errorPayload{
			Type:    candidate.class.typ,
			Code:    candidate.err.Error(),
			Message: candidate.class.message,
			Index:   index,
		}
		if candidate.class == classValidation {
			payload.Errors = []ValidationError{{
				Field:   validationErrorField(payload.Code),
				Code:    payload.Code,
				Message: validationErrorMessage(payload.Code),
			}}
		}
		return candidate.class.status, payload
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return classNotFound.status, errorPayload{Type: classNotFound.typ, Code: ErrNotFound.Error(), Message: classNotFound.message}
	}
	return classInternal.status, errorPayload{Type: classInternal.typ, Message: classInternal.message}
}

// classifyErrorForLog feeds the request logger with the mapped type and code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	switch code {
	case registrationdomain.ErrAmountMismatch.Error():
		return "amount"
	case registrationdomain.ErrTypeMismatch.Error(), identitydomain.ErrInvalidParticipant.Error():
		return "participant"
	case registrationdomain.ErrBulkPaidEvent.Error(), registrationdomain.ErrBulkEmpty.Error(), registrationdomain.ErrBulkTooLarge.Error():
		return "items"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case registrationdomain.ErrAmountMismatch.Error():
		return "amount does not match the event fee"
	case registrationdomain.ErrTypeMismatch.Error():
		return "participant kind does not match the event registration type"
	case registrationdomain.ErrBulkPaidEvent.Error():
		return "bulk registration accepts free events only"
	case registrationdomain.ErrBulkEmpty.Error():
		return "at least one item is required"
	case registrationdomain.ErrBulkTooLarge.Error():
		return "too many items"
	default:
		return "invalid value"
	}
}
