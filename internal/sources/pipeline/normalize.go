package pipeline

import (
	"encoding/json"
	"strings"

	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
)

// DefaultExtractPaths is the candidate order most JSON upstreams match.
// The trailing "." candidate accepts a bare root array.
var DefaultExtractPaths = []string{"data.records", "records", "data", "."}

// Extraction is the result of normalizing a raw payload: the records
// found and the candidate path that produced them. The shape is kept so
// re-serialization can preserve what the adapter's consumers expect.
type Extraction struct {
	Records []sourcesdomain.Record
	Shape   string
}

// Extract tries an ordered list of path candidates against a raw JSON
// payload and returns the first that yields an array. A payload matching
// no candidate normalizes to an empty record set: "no results" is a
// valid outcome distinct from "request failed".
func Extract(body []byte, candidates []string) Extraction {
	if len(candidates) == 0 {
		candidates = DefaultExtractPaths
	}

	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return Extraction{Records: []sourcesdomain.Record{}}
	}

	for _, candidate := range candidates {
		value, ok := resolvePath(root, candidate)
		if !ok {
			continue
		}
		records, ok := asRecords(value)
		if !ok {
			continue
		}
		return Extraction{Records: records, Shape: candidate}
	}
	return Extraction{Records: []sourcesdomain.Record{}}
}

func resolvePath(root any, candidate string) (any, bool) {
	if candidate == "." {
		return root, true
	}
	current := root
	for _, part := range strings.Split(candidate, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asRecords(value any) ([]sourcesdomain.Record, bool) {
	items, ok := value.([]any)
	if !ok {
		return nil, false
	}
	records := make([]sourcesdomain.Record, 0, len(items))
	for _, item := range items {
		if object, ok := item.(map[string]any); ok {
			records = append(records, sourcesdomain.Record(object))
			continue
		}
		// Scalar rows (bare string lists) are wrapped so callers always
		// see objects.
		records = append(records, sourcesdomain.Record{"value": item})
	}
	return records, true
}
