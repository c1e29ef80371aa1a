package companyregistry

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

// DirectorAdapter searches the registry's officer index by person name.
// Same upstream as the extract adapter, but an individual-keyed search
// with its own required fields.
type DirectorAdapter struct {
	client *client.Client
}

func NewDirector(c *client.Client) *DirectorAdapter {
	return &DirectorAdapter{client: c}
}

func (a *DirectorAdapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:        config.ServiceCompanyRegistry,
		ReportTypes: []reportdomain.ReportType{reportdomain.DirectorCheck},
		Required: []sourcesdomain.SubjectField{
			sourcesdomain.FieldGivenName,
			sourcesdomain.FieldFamilyName,
		},
		Paginated:    true,
		ExtractPaths: []string{"data.records", "records"},
		FetchTimeout: 30 * time.Second,
	}
}

func (a *DirectorAdapter) Fetch(ctx context.Context, subject reportdomain.Subject, page sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
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

	body, err := a.client.GetJSON(ctx, config.ServiceCompanyRegistry, "/v2/officers/search", query)
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body}, nil
}
