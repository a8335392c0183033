package classify

import (
	"fmt"
	"sort"
)

// Selector chooses the pages to extract. Results are ascending without
// duplicates; an empty result means nothing usable was selected.
type Selector interface {
	Select(classes []PageClassification) ([]int, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(classes []PageClassification) ([]int, error)

func (f SelectorFunc) Select(classes []PageClassification) ([]int, error) {
	return f(classes)
}

// Rules is the set of form types treated as non-substantive.
type Rules struct {
	Exclude []FormType
}

// DefaultRules drops pages that never carry return figures.
func DefaultRules() Rules {
	return Rules{Exclude: []FormType{
		CoverLetter,
		SourceDocument,
		EfileAuthorization,
		DirectDeposit,
		CryptoDetail,
		K1Detail,
	}}
}

// RuleSelector keeps every page whose type is not excluded by its Rules.
// Unknown types are kept.
type RuleSelector struct {
	exclude map[FormType]struct{}
}

func NewRuleSelector(rules Rules) *RuleSelector {
	exclude := make(map[FormType]struct{}, len(rules.Exclude))
	for _, t := range rules.Exclude {
		exclude[t] = struct{}{}
	}
	return &RuleSelector{exclude: exclude}
}

func (s *RuleSelector) Select(classes []PageClassification) ([]int, error) {
	seen := make(map[int]struct{}, len(classes))
	pages := make([]int, 0, len(classes))
	for _, c := range classes {
		if c.Page < 1 {
			return nil, fmt.Errorf("invalid page number %d", c.Page)
		}
		if _, skip := s.exclude[c.Type]; skip {
			continue
		}
		if _, dup := seen[c.Page]; dup {
			continue
		}
		seen[c.Page] = struct{}{}
		pages = append(pages, c.Page)
	}
	sort.Ints(pages)
	return pages, nil
}
