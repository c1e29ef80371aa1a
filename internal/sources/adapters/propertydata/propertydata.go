package propertydata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vettedhq/vetted/internal/config"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	"github.com/vettedhq/vetted/internal/sources/client"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
)

// Adapter orders a property profile with an automated valuation for one
// address. Valuations take the provider a little while to compute, so
// the flow is submit then fetch.
type Adapter struct {
	client *client.Client
}

func New(c *client.Client) *Adapter {
	return &Adapter{client: c}
}

func (a *Adapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:         config.ServicePropertyData,
		ReportTypes:  []reportdomain.ReportType{reportdomain.PropertyWithValuation},
		Required:     []sourcesdomain.SubjectField{sourcesdomain.FieldAddress},
		ExtractPaths: []string{"data", "."},
		TwoPhase:     true,
		PollDelay:    10 * time.Second,
		FetchTimeout: 30 * time.Second,
	}
}

func (a *Adapter) Submit(ctx context.Context, subject reportdomain.Subject) (*sourcesdomain.AsyncJob, error) {
	payload := map[string]any{
		"address":           subject.Address,
		"include_valuation": true,
	}
	body, err := a.client.PostJSON(ctx, config.ServicePropertyData, "/v1/profiles", payload)
	if err != nil {
		return nil, err
	}

	var job struct {
		ProfileID string `json:"profile_id"`
	}
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, err
	}
	if job.ProfileID == "" {
		return nil, fmt.Errorf("%w: profile order has no id", sourcesdomain.ErrUpstreamStatus)
	}

	return &sourcesdomain.AsyncJob{
		SubmissionID: job.ProfileID,
		PollDelay:    a.Descriptor().PollDelay,
	}, nil
}

func (a *Adapter) FetchResult(ctx context.Context, job *sourcesdomain.AsyncJob) (*sourcesdomain.RawPayload, error) {
	body, err := a.client.GetJSON(ctx, config.ServicePropertyData,
		"/v1/profiles/"+job.SubmissionID, nil)
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body, ExternalID: job.SubmissionID}, nil
}
