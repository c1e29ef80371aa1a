package unclaimedmoney

import (
	"context"
	"net/url"
	"time"

	"github.com/vettedhq/vetted/internal/config"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	"github.com/vettedhq/vetted/internal/sources/client"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
)

// Adapter searches the unclaimed-money register. The register only
// matches on a display name, so the search works for organisations and
// individuals alike.
type Adapter struct {
	client *client.Client
}

func New(c *client.Client) *Adapter {
	return &Adapter{client: c}
}

func (a *Adapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:         config.ServiceUnclaimedMoney,
		ReportTypes:  []reportdomain.ReportType{reportdomain.UnclaimedMoney},
		ExtractPaths: []string{"results", "records"},
		FetchTimeout: 30 * time.Second,
	}
}

func (a *Adapter) Fetch(ctx context.Context, subject reportdomain.Subject, _ sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
	name := subject.SearchLabel()
	if name == "" {
		return nil, sourcesdomain.ErrMissingSubjectField
	}

	query := url.Values{}
	query.Set("name", name)

	body, err := a.client.GetJSON(ctx, config.ServiceUnclaimedMoney, "/v1/unclaimed/search", query)
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body}, nil
}
