package courtrecords

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vettedhq/vetted/internal/config"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	"github.com/vettedhq/vetted/internal/sources/client"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Adapter fans out one criminal-record search across the district and
// federal court lists in parallel. One list being down degrades the
// document to a null section; both failing fails the request.
type Adapter struct {
	client *client.Client
	log    *zap.Logger
}

func New(c *client.Client, log *zap.Logger) *Adapter {
	return &Adapter{client: c, log: log.Named("sources.courtrecords")}
}

func (a *Adapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:        config.ServiceCourtRecords,
		ReportTypes: []reportdomain.ReportType{reportdomain.CourtCriminal},
		Required: []sourcesdomain.SubjectField{
			sourcesdomain.FieldGivenName,
			sourcesdomain.FieldFamilyName,
		},
		ExtractPaths: []string{"records"},
		FetchTimeout: 30 * time.Second,
	}
}

type branchResult struct {
	payload json.RawMessage
	err     error
}

func (a *Adapter) Fetch(ctx context.Context, subject reportdomain.Subject, _ sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
	query := url.Values{}
	query.Set("given_name", subject.GivenName)
	query.Set("family_name", subject.FamilyName)
	if subject.DateOfBirth != nil {
		query.Set("date_of_birth", subject.DateOfBirth.Format("2006-01-02"))
	}

	branches := map[string]string{
		"district": "/v1/district/criminal/search",
		"federal":  "/v1/federal/criminal/search",
	}

	var mu sync.Mutex
	results := map[string]branchResult{}

	g, gctx := errgroup.WithContext(ctx)
	for name, path := range branches {
		g.Go(func() error {
			body, err := a.client.GetJSON(gctx, config.ServiceCourtRecords, path, query)
			mu.Lock()
			results[name] = branchResult{payload: body, err: err}
			mu.Unlock()
			if err != nil {
				a.log.Warn("court list search failed",
					zap.String("branch", name),
					zap.Error(err),
				)
			}
			// Branch failures are tolerated here; the merge step decides
			// whether the whole request failed.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeBranches(results)
}

// mergeBranches builds one payload with a records array combining both
// lists and a per-branch sections map; a failed branch becomes a null
// section.
func mergeBranches(results map[string]branchResult) (*sourcesdomain.RawPayload, error) {
	var lastErr error
	failures := 0

	records := []any{}
	sections := map[string]any{}
	for name, result := range results {
		if result.err != nil {
			failures++
			lastErr = result.err
			sections[name] = nil
			continue
		}

		var branch struct {
			Records []map[string]any `json:"records"`
		}
		if err := json.Unmarshal(result.payload, &branch); err != nil {
			failures++
			lastErr = err
			sections[name] = nil
			continue
		}
		for _, record := range branch.Records {
			record["court_list"] = name
			records = append(records, record)
		}
		sections[name] = json.RawMessage(result.payload)
	}

	if failures == len(results) {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %v", reportdomain.ErrAllBranchesFailed, lastErr)
		}
		return nil, reportdomain.ErrAllBranchesFailed
	}

	body, err := json.Marshal(map[string]any{
		"records":  records,
		"sections": sections,
	})
	if err != nil {
		return nil, err
	}
	return &sourcesdomain.RawPayload{Body: body}, nil
}
