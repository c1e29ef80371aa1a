package businessnames

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"net/url"
	"time"

	"github.com/vettedhq/vetted/internal/config"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	"github.com/vettedhq/vetted/internal/sources/client"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
)

// The business-names register still answers in XML. Both adapters parse
// the XML document here and hand the pipeline a JSON payload so the
// shared extraction path never sees XML.

type nameRecord struct {
	Name         string `xml:"Name"`
	Status       string `xml:"Status"`
	Registration string `xml:"RegistrationNumber"`
	HolderName   string `xml:"HolderName"`
	HolderType   string `xml:"HolderType"`
	RegisteredAt string `xml:"RegisteredDate"`
	CancelledAt  string `xml:"CancelledDate"`
}

type nameSearchResponse struct {
	XMLName xml.Name     `xml:"SearchResult"`
	Records []nameRecord `xml:"BusinessNames>BusinessName"`
}

func toJSONPayload(raw []byte) ([]byte, error) {
	var parsed nameSearchResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, len(parsed.Records))
	for _, rec := range parsed.Records {
		row := map[string]any{
			"name":                rec.Name,
			"status":              rec.Status,
			"registration_number": rec.Registration,
			"holder_name":         rec.HolderName,
			"holder_type":         rec.HolderType,
		}
		if rec.RegisteredAt != "" {
			row["registered_date"] = rec.RegisteredAt
		}
		if rec.CancelledAt != "" {
			row["cancelled_date"] = rec.CancelledAt
		}
		records = append(records, row)
	}
	return json.Marshal(map[string]any{"records": records})
}

// SearchAdapter lists the business names an organisation holds.
type SearchAdapter struct {
	client *client.Client
}

func NewSearch(c *client.Client) *SearchAdapter {
	return &SearchAdapter{client: c}
}

func (a *SearchAdapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:         config.ServiceBusinessNames,
		ReportTypes:  []reportdomain.ReportType{reportdomain.BusinessNameSearch},
		Required:     []sourcesdomain.SubjectField{sourcesdomain.FieldBusinessNumber},
		ExtractPaths: []string{"records"},
		FetchTimeout: 30 * time.Second,
	}
}

func (a *SearchAdapter) Fetch(ctx context.Context, subject reportdomain.Subject, _ sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
	query := url.Values{}
	query.Set("holderBusinessNumber", subject.BusinessNumber)

	raw, err := a.client.GetXML(ctx, config.ServiceBusinessNames, "/register/names", query)
	if err != nil {
		return nil, err
	}
	body, err := toJSONPayload(raw)
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body}, nil
}

// SoleTraderAdapter lists the business names held by an individual.
type SoleTraderAdapter struct {
	client *client.Client
}

func NewSoleTrader(c *client.Client) *SoleTraderAdapter {
	return &SoleTraderAdapter{client: c}
}

func (a *SoleTraderAdapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:        config.ServiceBusinessNames,
		ReportTypes: []reportdomain.ReportType{reportdomain.SoleTraderCheck},
		Required: []sourcesdomain.SubjectField{
			sourcesdomain.FieldGivenName,
			sourcesdomain.FieldFamilyName,
		},
		ExtractPaths: []string{"records"},
		FetchTimeout: 30 * time.Second,
	}
}

func (a *SoleTraderAdapter) Fetch(ctx context.Context, subject reportdomain.Subject, _ sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
	query := url.Values{}
	query.Set("holderGivenName", subject.GivenName)
	query.Set("holderFamilyName", subject.FamilyName)
	if subject.DateOfBirth != nil {
		query.Set("holderDateOfBirth", subject.DateOfBirth.Format("2006-01-02"))
	}

	raw, err := a.client.GetXML(ctx, config.ServiceBusinessNames, "/register/names", query)
	if err != nil {
		return nil, err
	}
	body, err := toJSONPayload(raw)
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body}, nil
}
