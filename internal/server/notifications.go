package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	deltadomain "github.com/vettedhq/vetted/internal/delta/domain"
)

type notificationRequest struct {
	TargetSubjectKey string          `json:"target_subject_key" binding:"required"`
	TargetReportType string          `json:"target_report_type" binding:"required"`
	Kind             string          `json:"kind" binding:"required"`
	Payload          json.RawMessage `json:"payload" binding:"required"`
}

// applyNotification is the monitoring feed's webhook. Redelivered
// notifications are safe: an already-applied delta answers 200 with the
// unchanged snapshot.
func (s *Server) applyNotification(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	kind, ok := deltadomain.ParseKind(req.Kind)
	if !ok {
		AbortWithError(c, deltadomain.ErrUnknownKind)
		return
	}

	delta := deltadomain.NotificationDelta{
		TargetSubjectKey: strings.TrimSpace(req.TargetSubjectKey),
		TargetReportType: strings.TrimSpace(req.TargetReportType),
		Kind:             kind,
		Payload:          []byte(req.Payload),
	}

	snapshot, err := s.deltaSvc.ApplyDelta(c.Request.Context(), delta)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
