package engine

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/vettedhq/vetted/internal/clock"
	deltadomain "github.com/vettedhq/vetted/internal/delta/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Merge collections inside the canonical document, keyed by the payload
// identifiers their records carry. Dedup keys are tried in order.
var collections = map[deltadomain.DeltaKind]struct {
	field string
	ids   []string
}{
	deltadomain.KindNewCase:       {field: "court_actions", ids: []string{"case_id", "id"}},
	deltadomain.KindNewDocument:   {field: "documents", ids: []string{"document_id", "id"}},
	deltadomain.KindLicenceUpdate: {field: "licences", ids: []string{"licence_id", "id"}},
}

// Result is the outcome of one merge. Changed is false when the delta
// was already reflected in the document, which makes redelivery a no-op.
type Result struct {
	Document   datatypes.JSON
	Changed    bool
	AlertFlag  bool
	AlertCount int
}

// Engine folds notification deltas into snapshot documents. It never
// touches storage; the orchestrator owns the read-modify-write cycle.
type Engine struct {
	clk clock.Clock
	log *zap.Logger
}

func New(clk clock.Clock, log *zap.Logger) *Engine {
	return &Engine{clk: clk, log: log.Named("delta.engine")}
}

// Merge applies one delta to a document and recomputes the alert
// denormalization. The input document is not mutated.
func (e *Engine) Merge(document datatypes.JSON, delta deltadomain.NotificationDelta) (*Result, error) {
	doc := map[string]any{}
	if len(document) > 0 {
		if err := json.Unmarshal(document, &doc); err != nil {
			return nil, fmt.Errorf("%w: document is not an object", deltadomain.ErrInvalidPayload)
		}
	}

	var changed bool
	var err error
	switch delta.Kind {
	case deltadomain.KindNewCase, deltadomain.KindNewDocument, deltadomain.KindLicenceUpdate:
		changed, err = e.mergeCollection(doc, delta)
	case deltadomain.KindTaxDebtUpdate:
		changed, err = e.mergeTaxDebt(doc, delta)
	case deltadomain.KindRiskFactorUpdate:
		changed, err = e.mergeRiskFactor(doc, delta)
	default:
		return nil, deltadomain.ErrUnknownKind
	}
	if err != nil {
		return nil, err
	}

	alertCount := countAlerts(doc)
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &Result{
		Document:   merged,
		Changed:    changed,
		AlertFlag:  alertCount > 0,
		AlertCount: alertCount,
	}, nil
}

func (e *Engine) mergeCollection(doc map[string]any, delta deltadomain.NotificationDelta) (bool, error) {
	coll := collections[delta.Kind]

	record := map[string]any{}
	if err := json.Unmarshal(delta.Payload, &record); err != nil {
		return false, fmt.Errorf("%w: %s payload is not an object", deltadomain.ErrInvalidPayload, delta.Kind)
	}
	id := naturalID(record, coll.ids)
	if id == "" {
		return false, fmt.Errorf("%w: %s payload has no identifier", deltadomain.ErrInvalidPayload, delta.Kind)
	}

	existing := asSlice(doc[coll.field])
	for i, item := range existing {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if naturalID(row, coll.ids) != id {
			continue
		}
		if reflect.DeepEqual(row, record) {
			return false, nil
		}
		// Same identifier with different content replaces in place, so
		// corrected notifications update rather than duplicate.
		existing[i] = record
		doc[coll.field] = existing
		e.log.Debug("delta replaced record",
			zap.String("kind", string(delta.Kind)),
			zap.String("natural_id", id),
		)
		return true, nil
	}

	doc[coll.field] = append(existing, any(record))
	return true, nil
}

func (e *Engine) mergeTaxDebt(doc map[string]any, delta deltadomain.NotificationDelta) (bool, error) {
	incoming := map[string]any{}
	if err := json.Unmarshal(delta.Payload, &incoming); err != nil {
		return false, fmt.Errorf("%w: tax debt payload is not an object", deltadomain.ErrInvalidPayload)
	}

	current, _ := doc["tax_debt"].(map[string]any)
	if equalIgnoring(current, incoming, "updated_at") {
		return false, nil
	}

	if _, ok := incoming["updated_at"]; !ok {
		incoming["updated_at"] = e.clk.Now().UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	doc["tax_debt"] = incoming
	return true, nil
}

func (e *Engine) mergeRiskFactor(doc map[string]any, delta deltadomain.NotificationDelta) (bool, error) {
	var payload struct {
		RiskFactor *string `json:"risk_factor"`
	}
	if err := json.Unmarshal(delta.Payload, &payload); err != nil || payload.RiskFactor == nil {
		return false, fmt.Errorf("%w: risk factor payload needs risk_factor", deltadomain.ErrInvalidPayload)
	}

	if current, ok := doc["risk_factor"].(string); ok && current == *payload.RiskFactor {
		return false, nil
	}
	doc["risk_factor"] = *payload.RiskFactor
	return true, nil
}

// countAlerts derives the alert denormalization from the document alone,
// so the same document always carries the same counts.
func countAlerts(doc map[string]any) int {
	count := len(asSlice(doc["court_actions"])) + len(asSlice(doc["documents"]))
	if debt, ok := doc["tax_debt"].(map[string]any); ok {
		if amount, ok := debt["amount"].(float64); ok && amount > 0 {
			count++
		}
	}
	return count
}

func naturalID(record map[string]any, keys []string) string {
	for _, key := range keys {
		if value, ok := record[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func asSlice(value any) []any {
	slice, _ := value.([]any)
	return slice
}

func equalIgnoring(a, b map[string]any, field string) bool {
	if a == nil {
		return false
	}
	ac := make(map[string]any, len(a))
	for k, v := range a {
		if k != field {
			ac[k] = v
		}
	}
	bc := make(map[string]any, len(b))
	for k, v := range b {
		if k != field {
			bc[k] = v
		}
	}
	return reflect.DeepEqual(ac, bc)
}
