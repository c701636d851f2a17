package matching

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/far-audit/pkg/models"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func acmeRow() *models.GLEntry {
	return &models.GLEntry{
		ID:     uuid.New(),
		Vendor: "Acme Corp",
		Amount: decimal.RequireFromString("152.34"),
		Date:   day(2024, 6, 10),
	}
}

func TestScore_ExactAmountVendorAndCloseDate(t *testing.T) {
	m := NewMatcher(TierStrict)
	item := &models.DocumentItem{ID: uuid.New(), Vendor: "acme", Amount: amount("152.34"), Date: day(2024, 6, 11)}

	c := m.Evaluate(acmeRow(), item)

	assert.InDelta(t, 9.5, c.Score, 1e-9)
	assert.True(t, c.VendorMatch)
	require.NotNil(t, c.DateDeltaDays)
	assert.Equal(t, 1, *c.DateDeltaDays)
}

func TestScore_FarApartScoresZero(t *testing.T) {
	item := &models.DocumentItem{ID: uuid.New(), Vendor: "Other Inc", Amount: amount("160"), Date: day(2024, 6, 20)}

	assert.Zero(t, NewMatcher(TierStrict).Score(acmeRow(), item))
	// 7.66 falls in the loose band only for the UI tier.
	assert.InDelta(t, ScoreAmountLoose, NewMatcher(TierUI).Score(acmeRow(), item), 1e-9)
}

func TestRankCandidates_BestAndAutoLink(t *testing.T) {
	m := NewMatcher(TierStrict)
	good := &models.DocumentItem{ID: uuid.New(), Vendor: "acme", Amount: amount("152.34"), Date: day(2024, 6, 11)}
	bad := &models.DocumentItem{ID: uuid.New(), Vendor: "Other Inc", Amount: amount("160"), Date: day(2024, 6, 20)}

	ranked := m.RankCandidates(acmeRow(), []*models.DocumentItem{bad, good})

	require.Len(t, ranked, 2)
	assert.Equal(t, good.ID, ranked[0].Item.ID)
	assert.True(t, ranked[0].Best)
	assert.False(t, ranked[1].Best)

	auto := AutoLinkable(ranked, AutoLinkThreshold)
	require.Len(t, auto, 1)
	assert.Equal(t, good.ID, auto[0].Item.ID)
}

func TestRankCandidates_NoBestWhenAllZero(t *testing.T) {
	m := NewMatcher(TierStrict)
	item := &models.DocumentItem{ID: uuid.New(), Vendor: "Other Inc", Amount: amount("999")}

	ranked := m.RankCandidates(acmeRow(), []*models.DocumentItem{item})
	require.Len(t, ranked, 1)
	assert.False(t, ranked[0].Best)
}

func TestRankCandidates_TieBreaks(t *testing.T) {
	m := NewMatcher(TierUI)
	gl := acmeRow()

	// Same score 4.5+1.0; the smaller amount delta wins.
	closer := &models.DocumentItem{ID: uuid.New(), Amount: amount("152.00"), Date: day(2024, 6, 10)}
	farther := &models.DocumentItem{ID: uuid.New(), Amount: amount("151.50"), Date: day(2024, 6, 10)}
	ranked := m.RankCandidates(gl, []*models.DocumentItem{farther, closer})
	assert.Equal(t, closer.ID, ranked[0].Item.ID)

	// Same score and delta; the smaller date delta wins.
	sameDay := &models.DocumentItem{ID: uuid.New(), Amount: amount("152.34"), Date: day(2024, 6, 10)}
	twoDays := &models.DocumentItem{ID: uuid.New(), Amount: amount("152.34"), Date: day(2024, 6, 12)}
	ranked = m.RankCandidates(gl, []*models.DocumentItem{twoDays, sameDay})
	assert.Equal(t, sameDay.ID, ranked[0].Item.ID)

	// Fully tied; the smaller item id wins.
	a := &models.DocumentItem{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Amount: amount("152.34")}
	b := &models.DocumentItem{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Amount: amount("152.34")}
	ranked = m.RankCandidates(gl, []*models.DocumentItem{b, a})
	assert.Equal(t, a.ID, ranked[0].Item.ID)
}

func TestScore_MissingFields(t *testing.T) {
	m := NewMatcher(TierStrict)
	gl := &models.GLEntry{ID: uuid.New(), Amount: decimal.RequireFromString("10")}
	item := &models.DocumentItem{ID: uuid.New()}

	c := m.Evaluate(gl, item)
	assert.Zero(t, c.Score)
	assert.Nil(t, c.AmountDelta)
	assert.Nil(t, c.DateDeltaDays)

	assert.Zero(t, m.Score(nil, item))
	assert.Zero(t, m.Score(gl, nil))
}

func TestScore_AmountMonotone(t *testing.T) {
	gl := acmeRow()
	deltas := []string{"0", "0.005", "0.50", "1.00", "5.00", "10.00", "10.01", "100"}

	for _, tier := range []Tier{TierStrict, TierUI} {
		m := NewMatcher(tier)
		prev := -1.0
		for i := len(deltas) - 1; i >= 0; i-- {
			itemAmount := gl.Amount.Add(decimal.RequireFromString(deltas[i]))
			score := m.Score(gl, &models.DocumentItem{ID: uuid.New(), Amount: &itemAmount})
			assert.GreaterOrEqual(t, score, prev, "tier %d delta %s", tier, deltas[i])
			prev = score
		}
	}
}

func TestScore_VendorEqualityNotBelowContainment(t *testing.T) {
	m := NewMatcher(TierStrict)
	gl := acmeRow()

	exact := m.Score(gl, &models.DocumentItem{ID: uuid.New(), Vendor: "ACME CORP"})
	contained := m.Score(gl, &models.DocumentItem{ID: uuid.New(), Vendor: "acme"})
	assert.GreaterOrEqual(t, exact, contained)
	assert.InDelta(t, ScoreVendor, exact, 1e-9)
}

func TestScore_DateBands(t *testing.T) {
	m := NewMatcher(TierStrict)
	gl := acmeRow()

	tests := []struct {
		date *time.Time
		want float64
	}{
		{day(2024, 6, 8), ScoreDateClose},
		{day(2024, 6, 13), ScoreDateNear},
		{day(2024, 6, 17), ScoreDateNear},
		{day(2024, 6, 18), 0},
	}
	for _, tt := range tests {
		got := m.Score(gl, &models.DocumentItem{ID: uuid.New(), Date: tt.date})
		assert.InDelta(t, tt.want, got, 1e-9, tt.date.Format("2006-01-02"))
	}
}
