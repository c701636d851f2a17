package far

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/far-audit/pkg/models"
)

func builtinIndex(t *testing.T) *RuleIndex {
	t.Helper()
	rules, err := BuiltinRules()
	require.NoError(t, err)
	idx, err := NewRuleIndex(rules, nil)
	require.NoError(t, err)
	return idx
}

func TestClassify_Scenarios(t *testing.T) {
	idx := builtinIndex(t)

	tests := []struct {
		description string
		status      models.ComplianceStatus
		section     string
		issue       string
	}{
		{"Dinner and wine with client", models.StatusRed, "31.205-51", "Alcoholic Beverages (31.205-51)"},
		{"Airfare business class to DC", models.StatusYellow, "31.205-46(b)", "Travel Costs - Airfare (31.205-46(b))"},
		{"Office supplies", models.StatusGreen, "", models.CompliantIssue},
		{"", models.StatusGreen, "", models.CompliantIssue},
		{"HOTEL stay, 3 nights", models.StatusYellow, "31.205-46", "Travel Costs (31.205-46)"},
		{"Hotel bar tab", models.StatusRed, "31.205-51", "Alcoholic Beverages (31.205-51)"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			v := Classify(tt.description, idx)
			assert.Equal(t, tt.status, v.Status)
			assert.Equal(t, tt.section, v.FarSection)
			assert.Equal(t, tt.issue, v.FarIssue)
		})
	}
}

func TestClassify_IgnoresAmount(t *testing.T) {
	idx := builtinIndex(t)
	small := &models.GLEntry{Description: "Office supplies", Amount: decimal.NewFromInt(1)}
	huge := &models.GLEntry{Description: "Office supplies", Amount: decimal.NewFromInt(10_000_000)}

	assert.Equal(t, AuditRow(small, idx), AuditRow(huge, idx))
}

func TestClassify_NilIndex(t *testing.T) {
	v := Classify("wine", nil)
	assert.Equal(t, models.StatusGreen, v.Status)
}

func TestAuditAll_PreservesOrderAndIsPure(t *testing.T) {
	idx := builtinIndex(t)
	at := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	rows := []*models.GLEntry{
		{ID: uuid.New(), Description: "Office supplies"},
		{ID: uuid.New(), Description: "Wine for party"},
		{ID: uuid.New(), Description: "Hotel lodging"},
	}

	first := AuditAll(rows, idx, at)
	second := AuditAll(rows, idx, at)

	require.Len(t, first, len(rows))
	assert.Equal(t, first, second)
	for i, r := range first {
		assert.Equal(t, rows[i].ID, r.GLEntryID)
		assert.True(t, r.Status.Valid())
		assert.Equal(t, models.StateDetermined, r.State)
	}
	assert.Equal(t, models.StatusGreen, first[0].Status)
	assert.Equal(t, models.StatusRed, first[1].Status)
	assert.Equal(t, models.StatusYellow, first[2].Status)
}

func TestAuditAll_Empty(t *testing.T) {
	assert.Empty(t, AuditAll(nil, builtinIndex(t), time.Now()))
}
