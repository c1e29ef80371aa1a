package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	"go.uber.org/zap"
)

type subjectRequest struct {
	Kind           string `json:"kind" binding:"required"`
	BusinessNumber string `json:"business_number"`
	GivenName      string `json:"given_name"`
	FamilyName     string `json:"family_name"`
	DateOfBirth    string `json:"date_of_birth"`
	TitleReference string `json:"title_reference"`
	Address        string `json:"address"`
}

type acquireRequest struct {
	ReportType string         `json:"report_type" binding:"required"`
	Subject    subjectRequest `json:"subject" binding:"required"`
}

func (r subjectRequest) toDomain() (reportdomain.Subject, error) {
	switch reportdomain.SubjectKind(r.Kind) {
	case reportdomain.SubjectOrganisation:
		subject := reportdomain.NewOrganisation(r.BusinessNumber)
		subject.TitleReference = strings.TrimSpace(r.TitleReference)
		subject.Address = strings.TrimSpace(r.Address)
		return subject, nil
	case reportdomain.SubjectIndividual:
		var dob *time.Time
		if r.DateOfBirth != "" {
			parsed, err := time.Parse("2006-01-02", r.DateOfBirth)
			if err != nil {
				return reportdomain.Subject{}, fmt.Errorf("%w: date_of_birth must be YYYY-MM-DD", ErrInvalidRequest)
			}
			dob = &parsed
		}
		subject := reportdomain.NewIndividual(r.GivenName, r.FamilyName, dob)
		subject.TitleReference = strings.TrimSpace(r.TitleReference)
		subject.Address = strings.TrimSpace(r.Address)
		return subject, nil
	default:
		return reportdomain.Subject{}, fmt.Errorf("%w: unknown subject kind %q", ErrInvalidRequest, r.Kind)
	}
}

func (s *Server) acquireReport(c *gin.Context) {
	var req acquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	reportType, ok := reportdomain.ParseReportType(req.ReportType)
	if !ok {
		AbortWithError(c, reportdomain.ErrUnknownReportType)
		return
	}
	c.Set("report_type", reportType.String())

	subject, err := req.Subject.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	snapshot, err := s.reportSvc.Acquire(c.Request.Context(), subject, reportType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) latestReport(c *gin.Context) {
	rawType := c.Query("report_type")
	subjectKey := strings.TrimSpace(c.Query("subject_key"))
	reportType, ok := reportdomain.ParseReportType(rawType)
	if !ok || subjectKey == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	c.Set("report_type", reportType.String())

	snapshot, found, err := s.reportSvc.CheckExisting(c.Request.Context(), reportType, subjectKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !found {
		AbortWithError(c, reportdomain.ErrSnapshotNotFound)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) reportPDF(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshot, err := s.reportSvc.GetSnapshot(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.renderer.Render(c.Request.Context(), snapshot)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="report-`+id.String()+`.pdf"`)
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		s.log.Warn("pdf stream interrupted", zap.Error(err))
	}
}

func (s *Server) subjectReports(c *gin.Context) {
	subjectKey := strings.TrimSpace(c.Query("subject_key"))
	if subjectKey == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	snapshots, err := s.reportSvc.ListHistory(c.Request.Context(), subjectKey, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": snapshots})
}
