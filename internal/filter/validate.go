// internal/filter/validate.go
package filter

import (
	"strings"
	"time"

	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
)

// Candidate carries raw fields as extracted from user text, before any
// closed-set or date-grammar checks. A field the extractor did not see is
// left empty.
type Candidate struct {
	Categories    []string `json:"categories"`
	Areas         []string `json:"areas"`
	PeriodText    string   `json:"period"`
	AllCategories bool     `json:"all_categories"`
	AllAreas      bool     `json:"all_areas"`
}

// Validator normalizes Candidates against a Vocabulary. The clock is
// injected so month-only resolution is reproducible in tests.
type Validator struct {
	vocab  *Vocabulary
	loc    *time.Location
	now    func() time.Time
	logger logger.Logger
}

func NewValidator(vocab *Vocabulary, loc *time.Location, now func() time.Time, log logger.Logger) *Validator {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Validator{vocab: vocab, loc: loc, now: now, logger: log}
}

func (v *Validator) Vocabulary() *Vocabulary { return v.vocab }

// Validate turns a Candidate into a partial Filter plus the set of fields
// still missing. A field is either stored fully valid or reverted to
// missing; malformed values are never retained. Unrecognized category
// tokens are dropped silently; area tokens outside 1..15 are rejected the
// same way. "all" expands to the full closed set immediately.
func (v *Validator) Validate(c Candidate) (Filter, []Field) {
	var f Filter

	if c.AllCategories || containsAll(c.Categories) {
		f.Categories = v.vocab.Categories()
	} else {
		seen := make(map[Category]bool)
		for _, tok := range c.Categories {
			cat, ok := v.vocab.ParseCategory(tok)
			if !ok {
				v.reject(FieldCategories, tok)
				continue
			}
			if !seen[cat] {
				seen[cat] = true
				f.Categories = append(f.Categories, cat)
			}
		}
	}

	if c.AllAreas || containsAll(c.Areas) {
		f.Areas = v.vocab.Areas()
	} else {
		seen := make(map[int]bool)
		for _, tok := range c.Areas {
			area, ok := v.vocab.ParseArea(tok)
			if !ok {
				v.reject(FieldAreas, tok)
				continue
			}
			if !seen[area.Number] {
				seen[area.Number] = true
				f.Areas = append(f.Areas, area)
			}
		}
	}

	if text := strings.TrimSpace(c.PeriodText); text != "" {
		if p, err := ResolvePeriod(text, v.now(), v.loc); err == nil {
			f.Period = p
		} else {
			v.reject(FieldPeriod, text)
		}
	}

	return f, f.Missing()
}

// reject records one dropped token. The turn continues and the field
// simply stays missing until a usable value arrives.
func (v *Validator) reject(field Field, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	err := stderrors.NewValidationRejectedError(string(field), token)
	v.logger.Debug("dropped unusable token", map[string]interface{}{
		"field": string(field),
		"token": token,
		"error": err.Error(),
	})
}

// Merge folds a validated delta into an accumulated filter. A field that
// is already valid is kept; the delta only fills gaps, so a later
// low-confidence guess never silently replaces a confirmed value.
func Merge(base, delta Filter) Filter {
	out := base
	if len(out.Categories) == 0 {
		out.Categories = delta.Categories
	}
	if len(out.Areas) == 0 {
		out.Areas = delta.Areas
	}
	if out.Period == nil {
		out.Period = delta.Period
	}
	return out
}

func containsAll(tokens []string) bool {
	for _, t := range tokens {
		if strings.EqualFold(strings.TrimSpace(t), "all") {
			return true
		}
	}
	return false
}
