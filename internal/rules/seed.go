package rules

import (
	"context"

	"gopkg.in/yaml.v3"
)

// defaultRulesYAML seeds one rule per category the first time the service
// starts against an empty categorization_rules table.
const defaultRulesYAML = `
- rule_id: pop_default
  category: popolazione
  keywords: [popolazione, residenti, demografia, nascite, decessi]
  priority: 10
- rule_id: eco_default
  category: economia
  keywords: [pil, inflazione, prezzi, commercio, imprese]
  priority: 10
- rule_id: lav_default
  category: lavoro
  keywords: [occupazione, disoccupazione, lavoro, salari]
  priority: 10
- rule_id: terr_default
  category: territorio
  keywords: [territorio, ambiente, superficie, comuni]
  priority: 10
- rule_id: istr_default
  category: istruzione
  keywords: [istruzione, scuola, universita, laureati]
  priority: 10
- rule_id: sal_default
  category: salute
  keywords: [salute, sanita, ospedali, mortalita]
  priority: 10
`

// seedRule is the YAML document shape, separate from Rule since the seed
// fixture's keywords are a plain list, not the JSON-column wire shape.
type seedRule struct {
	RuleID   string   `yaml:"rule_id"`
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Priority int      `yaml:"priority"`
}

// SeedDefaults inserts the built-in rule set if the table is currently
// empty, leaving any existing rules untouched.
func SeedDefaults(ctx context.Context, repo *Repo) error {
	existing, err := repo.List(ctx, false)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	var seeds []seedRule
	if err := yaml.Unmarshal([]byte(defaultRulesYAML), &seeds); err != nil {
		return err
	}

	var firstErr error
	for _, s := range seeds {
		rule := &Rule{
			RuleID:   s.RuleID,
			Category: s.Category,
			Keywords: s.Keywords,
			Priority: s.Priority,
			IsActive: true,
		}
		if err := repo.Insert(ctx, rule); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
