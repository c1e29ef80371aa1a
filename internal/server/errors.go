package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	deltadomain "github.com/vettedhq/vetted/internal/delta/domain"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	snapshotdomain "github.com/vettedhq/vetted/internal/snapshot/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

// ErrorHandlingMiddleware turns errors attached to the context into one
// JSON error response after the handler chain runs.
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

func mapError(err error) (int, errorPayload) {
	if code, ok := reportdomain.CodeOf(err); ok {
		switch code {
		case reportdomain.FaultInvalidInput:
			return http.StatusBadRequest, errorPayload{Type: string(code), Message: err.Error()}
		case reportdomain.FaultUpstreamTimeout:
			return http.StatusGatewayTimeout, errorPayload{Type: string(code), Message: "upstream source timed out"}
		case reportdomain.FaultUpstreamUnavailable:
			return http.StatusBadGateway, errorPayload{Type: string(code), Message: "upstream source unavailable"}
		case reportdomain.FaultPersistence:
			return http.StatusInternalServerError, errorPayload{Type: string(code), Message: "storage failure"}
		}
	}

	switch {
	case errors.Is(err, reportdomain.ErrSnapshotNotFound),
		errors.Is(err, snapshotdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "snapshot not found"}
	case errors.Is(err, reportdomain.ErrUnknownReportType),
		errors.Is(err, deltadomain.ErrUnknownKind),
		errors.Is(err, deltadomain.ErrInvalidPayload),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// classifyErrorForLog labels request log lines without leaking details.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, "server_error"
	}
	return payload.Type, "client_error"
}
