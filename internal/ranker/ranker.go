// Package ranker turns raw model predictions into an ordered, themed result
// list with a single top pick. It is pure and does no I/O.
package ranker

import (
	"cmp"
	"slices"
	"strings"

	"github.com/tphakala/livelabel/internal/errors"
	"github.com/tphakala/livelabel/internal/model"
)

// Theme is a presentation bucket derived from a label.
type Theme string

// Built-in themes.
const (
	ThemeDefault Theme = "default"
	ThemeMessy   Theme = "messy"
	ThemeClean   Theme = "clean"
)

// Result is one ranked prediction.
type Result struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
	Theme       Theme   `json:"theme"`
	TopPick     bool    `json:"topPick"`
}

// Prediction converts a result back to the prediction it was ranked from.
func (r Result) Prediction() model.Prediction {
	return model.Prediction{Label: r.Label, Probability: r.Probability}
}

// Rule maps labels containing Match (case-insensitive) to Theme.
type Rule struct {
	Match string `json:"match" yaml:"match" mapstructure:"match"`
	Theme Theme  `json:"theme" yaml:"theme" mapstructure:"theme"`
}

// Rules is an ordered rule table; the first matching rule wins.
type Rules []Rule

// DefaultRules returns the stock rule table.
func DefaultRules() Rules {
	return Rules{
		{Match: "messy", Theme: ThemeMessy},
		{Match: "clean", Theme: ThemeClean},
	}
}

// Theme returns the theme of the first rule whose matcher is a
// case-insensitive substring of label, or ThemeDefault.
func (rs Rules) Theme(label string) Theme {
	lower := strings.ToLower(label)
	for _, r := range rs {
		if r.Match != "" && strings.Contains(lower, strings.ToLower(r.Match)) {
			return r.Theme
		}
	}
	return ThemeDefault
}

// Validate rejects rules with an empty matcher or theme.
func (rs Rules) Validate() error {
	for i, r := range rs {
		if strings.TrimSpace(r.Match) == "" {
			return errors.Newf("theme rule %d has an empty match", i).
				Component("ranker").
				Category(errors.CategoryValidation).
				Build()
		}
		if strings.TrimSpace(string(r.Theme)) == "" {
			return errors.Newf("theme rule %d (%q) has an empty theme", i, r.Match).
				Component("ranker").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return nil
}

// ParseRules builds a rule table from ordered match/theme string pairs and
// validates it. An empty list yields DefaultRules.
func ParseRules(pairs []map[string]string) (Rules, error) {
	if len(pairs) == 0 {
		return DefaultRules(), nil
	}
	rules := make(Rules, 0, len(pairs))
	for _, p := range pairs {
		rules = append(rules, Rule{Match: p["match"], Theme: Theme(p["theme"])})
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Rank stable-sorts preds by probability descending, assigns each a theme and
// marks index 0 as the top pick. preds is not modified. Empty input yields an
// empty, non-nil slice.
func Rank(preds []model.Prediction, rules Rules) []Result {
	results := make([]Result, len(preds))
	for i, p := range preds {
		results[i] = Result{
			Label:       p.Label,
			Probability: p.Probability,
			Theme:       rules.Theme(p.Label),
		}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Probability, a.Probability)
	})

	if len(results) > 0 {
		results[0].TopPick = true
	}
	return results
}

// Predictions strips ranking annotations, preserving order.
func Predictions(results []Result) []model.Prediction {
	preds := make([]model.Prediction, len(results))
	for i, r := range results {
		preds[i] = r.Prediction()
	}
	return preds
}
