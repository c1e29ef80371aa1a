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

// Adapter queries the companies registry. The current extract backs the
// registry-current, court-civil and tax-debt report family; historical
// extracts paginate.
type Adapter struct {
	client *client.Client
}

func New(c *client.Client) *Adapter {
	return &Adapter{client: c}
}

func (a *Adapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name: config.ServiceCompanyRegistry,
		ReportTypes: []reportdomain.ReportType{
			reportdomain.RegistryCurrent,
			reportdomain.RegistryHistorical,
			reportdomain.CourtCivil,
			reportdomain.TaxDebt,
		},
		Required:     []sourcesdomain.SubjectField{sourcesdomain.FieldBusinessNumber},
		Paginated:    true,
		ExtractPaths: []string{"data.records", "records"},
		FetchTimeout: 30 * time.Second,
	}
}

func (a *Adapter) Fetch(ctx context.Context, subject reportdomain.Subject, page sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
	query := url.Values{}
	query.Set("business_number", subject.BusinessNumber)
	query.Set("include", "officers,court_actions,tax_debt")
	if page.Number > 0 {
		query.Set("page", strconv.Itoa(page.Number))
		query.Set("page_size", strconv.Itoa(page.Size))
	}

	body, err := a.client.GetJSON(ctx, config.ServiceCompanyRegistry, "/v2/extracts", query)
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body}, nil
}
