package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/johnfercher/maroto/v2"
	marotoconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	snapshotdomain "github.com/vettedhq/vetted/internal/snapshot/domain"
)

// Renderer produces a human-readable rendition of a stored snapshot.
type Renderer interface {
	Render(ctx context.Context, snapshot *snapshotdomain.ReportSnapshot) (io.Reader, error)
}

const maxRenderRows = 40

// PDFRenderer lays out a one-page summary sheet: report header, alert
// line, then the normalized records as key/value rows.
type PDFRenderer struct{}

func NewPDF() *PDFRenderer {
	return &PDFRenderer{}
}

func (p *PDFRenderer) Render(_ context.Context, snapshot *snapshotdomain.ReportSnapshot) (io.Reader, error) {
	var doc map[string]any
	if err := json.Unmarshal(snapshot.Document, &doc); err != nil {
		return nil, fmt.Errorf("snapshot document is not renderable: %w", err)
	}

	cfg := marotoconfig.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Report: "+snapshot.ReportType, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
		}),
		text.NewCol(4, snapshot.CreatedAt.Format("2006-01-02 15:04"), props.Text{
			Size:  9,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(14,
		col.New(12).Add(
			text.New("Subject: "+snapshot.SearchLabel, props.Text{Size: 10}),
			text.New("Reference: "+snapshot.ExternalID, props.Text{Size: 8, Top: 6}),
		),
	)

	if snapshot.AlertFlag {
		m.AddRow(10,
			text.NewCol(12, fmt.Sprintf("%d alert item(s) on file", snapshot.AlertCount), props.Text{
				Size:  10,
				Style: fontstyle.Bold,
			}),
		)
	}

	records, _ := doc["records"].([]any)
	m.AddRow(10,
		text.NewCol(12, fmt.Sprintf("Records (%d)", len(records)), props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Top:   2,
		}),
	)

	rows := 0
	for _, item := range records {
		record, ok := item.(map[string]any)
		if !ok || rows >= maxRenderRows {
			continue
		}
		rows++
		m.AddRow(10,
			text.NewCol(12, recordLine(record), props.Text{Size: 8}),
		)
	}
	if len(records) > maxRenderRows {
		m.AddRow(8,
			text.NewCol(12, fmt.Sprintf("... and %d more", len(records)-maxRenderRows), props.Text{Size: 8}),
		)
	}

	generated, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(generated.GetBytes()), nil
}

// recordLine flattens one record into a stable "key: value" line.
func recordLine(record map[string]any) string {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for i, key := range keys {
		if i > 0 {
			buf.WriteString("  ")
		}
		fmt.Fprintf(&buf, "%s: %v", key, record[key])
	}
	return buf.String()
}
