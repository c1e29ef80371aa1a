package landtitle

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

// The land registry runs every title search as an order. Each search
// mode takes a different subject shape, so the modes are separate
// adapters around one shared order flow. Results carry one record per
// title reference.

const (
	pollDelay    = 15 * time.Second
	fetchTimeout = 30 * time.Second
)

type orderClient struct {
	client *client.Client
}

func (o orderClient) submit(ctx context.Context, payload map[string]any) (*sourcesdomain.AsyncJob, error) {
	body, err := o.client.PostJSON(ctx, config.ServiceLandTitle, "/v1/title-orders", payload)
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
		return nil, fmt.Errorf("%w: title order has no id", sourcesdomain.ErrUpstreamStatus)
	}
	return &sourcesdomain.AsyncJob{
		SubmissionID: order.OrderID,
		PollURL:      order.ResultURL,
		PollDelay:    pollDelay,
	}, nil
}

func (o orderClient) fetchResult(ctx context.Context, job *sourcesdomain.AsyncJob) (*sourcesdomain.RawPayload, error) {
	var body []byte
	var err error
	if job.PollURL != "" {
		body, err = o.client.GetURL(ctx, config.ServiceLandTitle, job.PollURL)
	} else {
		body, err = o.client.GetJSON(ctx, config.ServiceLandTitle,
			"/v1/title-orders/"+job.SubmissionID+"/result", nil)
	}
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body, ExternalID: job.SubmissionID}, nil
}

func descriptor(rt reportdomain.ReportType, required ...sourcesdomain.SubjectField) sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:         config.ServiceLandTitle,
		ReportTypes:  []reportdomain.ReportType{rt},
		Required:     required,
		ExtractPaths: []string{"titles", "records"},
		TwoPhase:     true,
		PollDelay:    pollDelay,
		FetchTimeout: fetchTimeout,
		PerUnit:      true,
	}
}

// ReferenceAdapter orders a search for one known title reference.
type ReferenceAdapter struct{ orderClient }

func NewReference(c *client.Client) *ReferenceAdapter {
	return &ReferenceAdapter{orderClient{client: c}}
}

func (a *ReferenceAdapter) Descriptor() sourcesdomain.Descriptor {
	return descriptor(reportdomain.LandTitleByReference, sourcesdomain.FieldTitleReference)
}

func (a *ReferenceAdapter) Submit(ctx context.Context, subject reportdomain.Subject) (*sourcesdomain.AsyncJob, error) {
	return a.submit(ctx, map[string]any{
		"search_type":     "reference",
		"title_reference": subject.TitleReference,
	})
}

func (a *ReferenceAdapter) FetchResult(ctx context.Context, job *sourcesdomain.AsyncJob) (*sourcesdomain.RawPayload, error) {
	return a.fetchResult(ctx, job)
}

// AddressAdapter orders a search for all titles at a street address.
type AddressAdapter struct{ orderClient }

func NewAddress(c *client.Client) *AddressAdapter {
	return &AddressAdapter{orderClient{client: c}}
}

func (a *AddressAdapter) Descriptor() sourcesdomain.Descriptor {
	return descriptor(reportdomain.LandTitleByAddress, sourcesdomain.FieldAddress)
}

func (a *AddressAdapter) Submit(ctx context.Context, subject reportdomain.Subject) (*sourcesdomain.AsyncJob, error) {
	return a.submit(ctx, map[string]any{
		"search_type": "address",
		"address":     subject.Address,
	})
}

func (a *AddressAdapter) FetchResult(ctx context.Context, job *sourcesdomain.AsyncJob) (*sourcesdomain.RawPayload, error) {
	return a.fetchResult(ctx, job)
}

// OrganisationAdapter orders an ownership search by registered owner
// organisation.
type OrganisationAdapter struct{ orderClient }

func NewOrganisation(c *client.Client) *OrganisationAdapter {
	return &OrganisationAdapter{orderClient{client: c}}
}

func (a *OrganisationAdapter) Descriptor() sourcesdomain.Descriptor {
	return descriptor(reportdomain.LandTitleByOrg, sourcesdomain.FieldBusinessNumber)
}

func (a *OrganisationAdapter) Submit(ctx context.Context, subject reportdomain.Subject) (*sourcesdomain.AsyncJob, error) {
	return a.submit(ctx, map[string]any{
		"search_type":     "owner_organisation",
		"business_number": subject.BusinessNumber,
	})
}

func (a *OrganisationAdapter) FetchResult(ctx context.Context, job *sourcesdomain.AsyncJob) (*sourcesdomain.RawPayload, error) {
	return a.fetchResult(ctx, job)
}

// IndividualAdapter orders an ownership search by registered owner name.
type IndividualAdapter struct{ orderClient }

func NewIndividual(c *client.Client) *IndividualAdapter {
	return &IndividualAdapter{orderClient{client: c}}
}

func (a *IndividualAdapter) Descriptor() sourcesdomain.Descriptor {
	return descriptor(reportdomain.LandTitleByIndividual,
		sourcesdomain.FieldGivenName, sourcesdomain.FieldFamilyName)
}

func (a *IndividualAdapter) Submit(ctx context.Context, subject reportdomain.Subject) (*sourcesdomain.AsyncJob, error) {
	payload := map[string]any{
		"search_type": "owner_individual",
		"given_name":  subject.GivenName,
		"family_name": subject.FamilyName,
	}
	if subject.DateOfBirth != nil {
		payload["date_of_birth"] = subject.DateOfBirth.Format("2006-01-02")
	}
	return a.submit(ctx, payload)
}

func (a *IndividualAdapter) FetchResult(ctx context.Context, job *sourcesdomain.AsyncJob) (*sourcesdomain.RawPayload, error) {
	return a.fetchResult(ctx, job)
}
