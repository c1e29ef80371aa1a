package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vettedhq/vetted/internal/clock"
	deltadomain "github.com/vettedhq/vetted/internal/delta/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func newTestEngine() *Engine {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return New(clk, zap.NewNop())
}

func document(t *testing.T, doc map[string]any) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func parse(t *testing.T, raw datatypes.JSON) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestMergeNewCaseAppendsAndCounts(t *testing.T) {
	eng := newTestEngine()
	doc := document(t, map[string]any{"records": []any{}})

	result, err := eng.Merge(doc, deltadomain.NotificationDelta{
		Kind:    deltadomain.KindNewCase,
		Payload: []byte(`{"case_id":"C-100","court":"district"}`),
	})
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.True(t, result.AlertFlag)
	require.Equal(t, 1, result.AlertCount)

	merged := parse(t, result.Document)
	cases := merged["court_actions"].([]any)
	require.Len(t, cases, 1)
}

func TestMergeRedeliveryIsNoop(t *testing.T) {
	eng := newTestEngine()
	delta := deltadomain.NotificationDelta{
		Kind:    deltadomain.KindNewCase,
		Payload: []byte(`{"case_id":"C-100","court":"district"}`),
	}

	first, err := eng.Merge(document(t, map[string]any{}), delta)
	require.NoError(t, err)
	require.True(t, first.Changed)

	second, err := eng.Merge(first.Document, delta)
	require.NoError(t, err)
	require.False(t, second.Changed)
	require.Equal(t, first.AlertCount, second.AlertCount)
	require.JSONEq(t, string(first.Document), string(second.Document))
}

func TestMergeCorrectedCaseReplacesInPlace(t *testing.T) {
	eng := newTestEngine()

	first, err := eng.Merge(document(t, map[string]any{}), deltadomain.NotificationDelta{
		Kind:    deltadomain.KindNewCase,
		Payload: []byte(`{"case_id":"C-100","status":"open"}`),
	})
	require.NoError(t, err)

	second, err := eng.Merge(first.Document, deltadomain.NotificationDelta{
		Kind:    deltadomain.KindNewCase,
		Payload: []byte(`{"case_id":"C-100","status":"closed"}`),
	})
	require.NoError(t, err)
	require.True(t, second.Changed)
	require.Equal(t, 1, second.AlertCount)

	cases := parse(t, second.Document)["court_actions"].([]any)
	require.Len(t, cases, 1)
	require.Equal(t, "closed", cases[0].(map[string]any)["status"])
}

func TestMergeTaxDebtReplacesAndStamps(t *testing.T) {
	eng := newTestEngine()
	delta := deltadomain.NotificationDelta{
		Kind:    deltadomain.KindTaxDebtUpdate,
		Payload: []byte(`{"amount":125000.50,"currency":"AUD"}`),
	}

	result, err := eng.Merge(document(t, map[string]any{}), delta)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, 1, result.AlertCount)

	debt := parse(t, result.Document)["tax_debt"].(map[string]any)
	require.Equal(t, 125000.50, debt["amount"])
	require.NotEmpty(t, debt["updated_at"])

	// Same figures redelivered leave the document untouched.
	again, err := eng.Merge(result.Document, delta)
	require.NoError(t, err)
	require.False(t, again.Changed)
}

func TestMergeRiskFactorOverwritesScalar(t *testing.T) {
	eng := newTestEngine()
	doc := document(t, map[string]any{"risk_factor": "low"})

	result, err := eng.Merge(doc, deltadomain.NotificationDelta{
		Kind:    deltadomain.KindRiskFactorUpdate,
		Payload: []byte(`{"risk_factor":"high"}`),
	})
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, "high", parse(t, result.Document)["risk_factor"])

	same, err := eng.Merge(result.Document, deltadomain.NotificationDelta{
		Kind:    deltadomain.KindRiskFactorUpdate,
		Payload: []byte(`{"risk_factor":"high"}`),
	})
	require.NoError(t, err)
	require.False(t, same.Changed)
}

func TestMergeRejectsPayloadWithoutIdentifier(t *testing.T) {
	eng := newTestEngine()

	_, err := eng.Merge(document(t, map[string]any{}), deltadomain.NotificationDelta{
		Kind:    deltadomain.KindNewDocument,
		Payload: []byte(`{"title":"annual statement"}`),
	})
	require.ErrorIs(t, err, deltadomain.ErrInvalidPayload)
}

func TestMergeUnknownKind(t *testing.T) {
	eng := newTestEngine()

	_, err := eng.Merge(document(t, map[string]any{}), deltadomain.NotificationDelta{
		Kind:    deltadomain.DeltaKind("renamed"),
		Payload: []byte(`{}`),
	})
	require.ErrorIs(t, err, deltadomain.ErrUnknownKind)
}
