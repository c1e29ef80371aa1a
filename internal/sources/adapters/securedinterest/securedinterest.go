package securedinterest

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

// Adapter orders grantor searches against the secured-interest register.
// The register runs searches as jobs, so the adapter submits an order and
// fetches the certificate once the register has materialized it.
type Adapter struct {
	client *client.Client
}

func New(c *client.Client) *Adapter {
	return &Adapter{client: c}
}

func (a *Adapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name: config.ServiceSecuredInterest,
		ReportTypes: []reportdomain.ReportType{
			reportdomain.SecuredInterest,
			reportdomain.VehicleSecuredInterest,
		},
		Required:     []sourcesdomain.SubjectField{sourcesdomain.FieldBusinessNumber},
		ExtractPaths: []string{"data.records", "records"},
		TwoPhase:     true,
		PollDelay:    20 * time.Second,
		FetchTimeout: 30 * time.Second,
	}
}

func (a *Adapter) Submit(ctx context.Context, subject reportdomain.Subject) (*sourcesdomain.AsyncJob, error) {
	payload := map[string]any{
		"search_type":     "grantor",
		"business_number": subject.BusinessNumber,
	}
	body, err := a.client.PostJSON(ctx, config.ServiceSecuredInterest, "/v1/search-orders", payload)
	if err != nil {
		return nil, err
	}

	var order struct {
		OrderID   string `json:"order_id"`
		ResultURL string `json:"result_url"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, err
	}
	if order.OrderID == "" {
		return nil, fmt.Errorf("%w: search order has no id", sourcesdomain.ErrUpstreamStatus)
	}

	return &sourcesdomain.AsyncJob{
		SubmissionID: order.OrderID,
		PollURL:      order.ResultURL,
		PollDelay:    a.Descriptor().PollDelay,
	}, nil
}

func (a *Adapter) FetchResult(ctx context.Context, job *sourcesdomain.AsyncJob) (*sourcesdomain.RawPayload, error) {
	var body []byte
	var err error
	if job.PollURL != "" {
		body, err = a.client.GetURL(ctx, config.ServiceSecuredInterest, job.PollURL)
	} else {
		body, err = a.client.GetJSON(ctx, config.ServiceSecuredInterest,
			"/v1/search-orders/"+job.SubmissionID+"/result", nil)
	}
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body, ExternalID: job.SubmissionID}, nil
}
