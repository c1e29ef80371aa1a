package trademarks

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

// Adapter searches the trademark register by owner.
type Adapter struct {
	client *client.Client
}

func New(c *client.Client) *Adapter {
	return &Adapter{client: c}
}

func (a *Adapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:         config.ServiceTrademarks,
		ReportTypes:  []reportdomain.ReportType{reportdomain.Trademark},
		Required:     []sourcesdomain.SubjectField{sourcesdomain.FieldBusinessNumber},
		Paginated:    true,
		ExtractPaths: []string{"data.records", "records"},
		FetchTimeout: 30 * time.Second,
	}
}

func (a *Adapter) Fetch(ctx context.Context, subject reportdomain.Subject, page sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
	query := url.Values{}
	query.Set("owner_business_number", subject.BusinessNumber)
	if page.Number > 0 {
		query.Set("page", strconv.Itoa(page.Number))
		query.Set("page_size", strconv.Itoa(page.Size))
	}

	body, err := a.client.GetJSON(ctx, config.ServiceTrademarks, "/v1/trademarks/search", query)
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body}, nil
}
