// Package far holds the FAR cost-principle rule index and the deterministic
// auditor that classifies GL rows against it.
package far

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/far-audit/pkg/models"
)

// RuleIndex is an immutable, ordered set of FAR rules. Rules are ordered by
// (severity rank, position in source) so an unallowable match always wins
// over a limited-allowable one. Safe for concurrent reads.
type RuleIndex struct {
	rules     []compiledRule
	bySection map[string]int
}

type compiledRule struct {
	rule     models.FarRule
	keywords []string // lowercased, in listed order
}

// NewRuleIndex merges builtin and overlay by section. An overlay rule replaces
// the builtin with the same section in place; new overlay sections are appended
// after the builtins. The merged set is then stably sorted by severity rank.
func NewRuleIndex(builtin, overlay []models.FarRule) (*RuleIndex, error) {
	merged := make([]models.FarRule, 0, len(builtin)+len(overlay))
	position := make(map[string]int, len(builtin)+len(overlay))

	for i, source := range [][]models.FarRule{builtin, overlay} {
		origin := "builtin"
		if i == 1 {
			origin = "overlay"
		}
		seen := make(map[string]bool, len(source))
		for _, rule := range source {
			normalized, err := normalizeRule(rule)
			if err != nil {
				return nil, fmt.Errorf("%s rule %q: %w", origin, rule.Section, err)
			}
			if seen[normalized.Section] {
				return nil, fmt.Errorf("%s rule %q: duplicate section", origin, normalized.Section)
			}
			seen[normalized.Section] = true

			if idx, ok := position[normalized.Section]; ok {
				merged[idx] = normalized
				continue
			}
			position[normalized.Section] = len(merged)
			merged = append(merged, normalized)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Severity.Rank() < merged[j].Severity.Rank()
	})

	idx := &RuleIndex{
		rules:     make([]compiledRule, len(merged)),
		bySection: make(map[string]int, len(merged)),
	}
	for i, rule := range merged {
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			keywords = append(keywords, strings.ToLower(kw))
		}
		idx.rules[i] = compiledRule{rule: rule, keywords: keywords}
		idx.bySection[rule.Section] = i
	}
	return idx, nil
}

// EmptyIndex returns an index with no rules. Auditing against it yields GREEN
// for every row.
func EmptyIndex() *RuleIndex {
	return &RuleIndex{bySection: map[string]int{}}
}

func normalizeRule(rule models.FarRule) (models.FarRule, error) {
	rule.Section = strings.TrimSpace(rule.Section)
	if rule.Section == "" {
		return rule, fmt.Errorf("section is required")
	}
	severity, err := models.ParseSeverity(string(rule.Severity))
	if err != nil {
		return rule, err
	}
	rule.Severity = severity

	keywords := make([]string, 0, len(rule.Keywords))
	for _, kw := range rule.Keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		keywords = append(keywords, kw)
	}
	rule.Keywords = keywords
	return rule, nil
}

// Len returns the number of rules in the index.
func (idx *RuleIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.rules)
}

// Rules returns a copy of the rules in scan order.
func (idx *RuleIndex) Rules() []models.FarRule {
	out := make([]models.FarRule, len(idx.rules))
	for i, r := range idx.rules {
		out[i] = r.rule
		out[i].Keywords = append([]string(nil), r.rule.Keywords...)
	}
	return out
}

// Lookup returns the rule for section.
func (idx *RuleIndex) Lookup(section string) (models.FarRule, bool) {
	i, ok := idx.bySection[strings.TrimSpace(section)]
	if !ok {
		return models.FarRule{}, false
	}
	return idx.rules[i].rule, true
}

// HasSection reports whether section is a known rule.
func (idx *RuleIndex) HasSection(section string) bool {
	_, ok := idx.bySection[strings.TrimSpace(section)]
	return ok
}

// Match is the first rule whose keyword appears in a text.
type Match struct {
	Rule    models.FarRule
	Keyword string
}

// FirstMatch scans rules in index order and each rule's keywords in listed
// order, returning the first keyword contained in the lowercased text.
func (idx *RuleIndex) FirstMatch(text string) (Match, bool) {
	if idx == nil || text == "" {
		return Match{}, false
	}
	lowered := strings.ToLower(text)
	for _, r := range idx.rules {
		for _, kw := range r.keywords {
			if strings.Contains(lowered, kw) {
				return Match{Rule: r.rule, Keyword: kw}, true
			}
		}
	}
	return Match{}, false
}
