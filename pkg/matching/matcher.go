// Package matching scores document items against GL rows and ranks link
// candidates.
package matching

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/far-audit/pkg/models"
)

// Signal weights.
const (
	ScoreAmountExact = 6.0
	ScoreAmountNear  = 4.5
	ScoreAmountLoose = 1.0
	ScoreVendor      = 2.5
	ScoreDateClose   = 1.0
	ScoreDateNear    = 0.5

	// AutoLinkThreshold is the minimum combined score for an automatic link:
	// an exact amount, or a near amount plus a vendor match.
	AutoLinkThreshold = 6.0
)

var (
	amountExactDelta = decimal.RequireFromString("0.01")
	amountNearDelta  = decimal.RequireFromString("1.00")
	amountLooseDelta = decimal.RequireFromString("10.00")
)

const (
	dateCloseDays = 2
	dateNearDays  = 7
)

// Tier selects the amount bands in play.
type Tier int

const (
	// TierStrict scores exact and near amounts only. Used for auto-link.
	TierStrict Tier = iota
	// TierUI also rewards amounts within 10.00, for manual-link ordering.
	TierUI
)

// Candidate is one scored document item for a GL row.
type Candidate struct {
	Item          *models.DocumentItem `json:"item"`
	Score         float64              `json:"score"`
	AmountDelta   *decimal.Decimal     `json:"amount_delta,omitempty"`
	VendorMatch   bool                 `json:"vendor_match"`
	DateDeltaDays *int                 `json:"date_delta_days,omitempty"`
	Best          bool                 `json:"best"`
}

// Matcher is stateless and safe for concurrent use.
type Matcher struct {
	tier Tier
}

// NewMatcher returns a matcher for the given tier.
func NewMatcher(tier Tier) *Matcher {
	return &Matcher{tier: tier}
}

// Tier returns the matcher's scoring tier.
func (m *Matcher) Tier() Tier {
	return m.tier
}

// Score returns the combined score for (gl, item). Missing fields contribute
// nothing.
func (m *Matcher) Score(gl *models.GLEntry, item *models.DocumentItem) float64 {
	return m.Evaluate(gl, item).Score
}

// Evaluate scores (gl, item) and keeps the per-signal detail used for
// tie-breaking.
func (m *Matcher) Evaluate(gl *models.GLEntry, item *models.DocumentItem) Candidate {
	c := Candidate{Item: item}
	if gl == nil || item == nil {
		return c
	}

	if item.Amount != nil {
		delta := gl.Amount.Sub(*item.Amount).Abs()
		c.AmountDelta = &delta
		c.Score += m.amountScore(delta)
	}

	if VendorsMatch(gl.Vendor, item.Vendor) {
		c.VendorMatch = true
		c.Score += ScoreVendor
	}

	if gl.Date != nil && item.Date != nil {
		days := DaysBetween(*gl.Date, *item.Date)
		c.DateDeltaDays = &days
		switch {
		case days <= dateCloseDays:
			c.Score += ScoreDateClose
		case days <= dateNearDays:
			c.Score += ScoreDateNear
		}
	}

	return c
}

func (m *Matcher) amountScore(delta decimal.Decimal) float64 {
	switch {
	case delta.LessThan(amountExactDelta):
		return ScoreAmountExact
	case delta.LessThanOrEqual(amountNearDelta):
		return ScoreAmountNear
	case m.tier == TierUI && delta.LessThanOrEqual(amountLooseDelta):
		return ScoreAmountLoose
	default:
		return 0
	}
}

// RankCandidates scores every item and orders them best first. Ties are
// broken by smaller amount delta, then vendor match, then smaller date delta,
// then item id. The first candidate is flagged Best when it scored above zero.
func (m *Matcher) RankCandidates(gl *models.GLEntry, items []*models.DocumentItem) []Candidate {
	ranked := make([]Candidate, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		ranked = append(ranked, m.Evaluate(gl, item))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})

	if len(ranked) > 0 && ranked[0].Score > 0 {
		ranked[0].Best = true
	}
	return ranked
}

// AutoLinkable filters ranked candidates down to those at or above threshold.
func AutoLinkable(ranked []Candidate, threshold float64) []Candidate {
	var out []Candidate
	for _, c := range ranked {
		if c.Score >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if cmp := compareOptionalDecimal(a.AmountDelta, b.AmountDelta); cmp != 0 {
		return cmp < 0
	}
	if a.VendorMatch != b.VendorMatch {
		return a.VendorMatch
	}
	if cmp := compareOptionalInt(a.DateDeltaDays, b.DateDeltaDays); cmp != 0 {
		return cmp < 0
	}
	return a.Item.ID.String() < b.Item.ID.String()
}

// Missing values sort after present ones.
func compareOptionalDecimal(a, b *decimal.Decimal) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Cmp(*b)
	}
}

func compareOptionalInt(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}
