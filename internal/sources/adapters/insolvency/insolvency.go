package insolvency

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/vettedhq/vetted/internal/config"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	"github.com/vettedhq/vetted/internal/sources/client"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
)

// Adapter searches the national insolvency index by name. Results page
// and are collected in full before normalisation.
type Adapter struct {
	client *client.Client
}

func New(c *client.Client) *Adapter {
	return &Adapter{client: c}
}

func (a *Adapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:        config.ServiceInsolvency,
		ReportTypes: []reportdomain.ReportType{reportdomain.Bankruptcy},
		Required: []sourcesdomain.SubjectField{
			sourcesdomain.FieldGivenName,
			sourcesdomain.FieldFamilyName,
		},
		Paginated:    true,
		ExtractPaths: []string{"data.records", "records"},
		FetchTimeout: 30 * time.Second,
	}
}

func (a *Adapter) Fetch(ctx context.Context, subject reportdomain.Subject, page sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
	query := url.Values{}
	query.Set("given_name", subject.GivenName)
	query.Set("family_name", subject.FamilyName)
	if subject.DateOfBirth != nil {
		query.Set("date_of_birth", subject.DateOfBirth.Format("2006-01-02"))
	}
	if page.Number > 0 {
		query.Set("page", strconv.Itoa(page.Number))
		query.Set("page_size", strconv.Itoa(page.Size))
	}

	body, err := a.client.GetJSON(ctx, config.ServiceInsolvency, "/v1/insolvencies/search", query)
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body}, nil
}
