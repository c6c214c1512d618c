// Package filter defines the canonical structured query for trip reports
// and the validation that turns raw extracted tokens into one.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Category is one of the closed set of trip category codes.
type Category string

const (
	CategoryMC  Category = "MC"
	CategoryJR  Category = "JR"
	CategoryPS  Category = "PS"
	CategoryDFW Category = "DFW"
)

// Area is one of the closed set of service areas.
type Area struct {
	Number int    `json:"number"`
	Name   string `json:"name"` // canonical form, e.g. "01-Thiruvottiyur(Area-1)"
}

// Field identifies one of the three filter fields.
type Field string

const (
	FieldPeriod     Field = "period"
	FieldAreas      Field = "areas"
	FieldCategories Field = "categories"
)

// PromptPriority is the fixed order in which missing fields are asked for.
var PromptPriority = []Field{FieldPeriod, FieldAreas, FieldCategories}

// Filter is the canonical structured query. A nil/empty field means the
// field is still missing; a populated field is always valid against the
// vocabulary it was validated with.
type Filter struct {
	Categories []Category `json:"categories,omitempty"`
	Areas      []Area     `json:"areas,omitempty"`
	Period     *Period    `json:"period,omitempty"`
}

// Missing returns the absent fields in prompt-priority order.
func (f Filter) Missing() []Field {
	var missing []Field
	for _, field := range PromptPriority {
		switch field {
		case FieldPeriod:
			if f.Period == nil {
				missing = append(missing, field)
			}
		case FieldAreas:
			if len(f.Areas) == 0 {
				missing = append(missing, field)
			}
		case FieldCategories:
			if len(f.Categories) == 0 {
				missing = append(missing, field)
			}
		}
	}
	return missing
}

// Complete reports whether all three fields are present.
func (f Filter) Complete() bool {
	return len(f.Missing()) == 0
}

// CategoryNames returns the category codes as plain strings.
func (f Filter) CategoryNames() []string {
	out := make([]string, 0, len(f.Categories))
	for _, c := range f.Categories {
		out = append(out, string(c))
	}
	return out
}

// AreaNames returns the canonical area names.
func (f Filter) AreaNames() []string {
	out := make([]string, 0, len(f.Areas))
	for _, a := range f.Areas {
		out = append(out, a.Name)
	}
	return out
}

var defaultAreaNames = []string{
	"01-Thiruvottiyur(Area-1)", "02-Manali(Area-2)", "03-Madhavaram(Area-3)",
	"04-Tondiarpet(Area-4)", "05-Royapuram(Area-5)", "06-Thiru-Vi-Ka Nagar(Area-6)",
	"07-Ambattur(Area-7)", "08-Anna Nagar(Area-8)", "09-Teynampet(Area-9)",
	"10-Kodambakkam(Area-10)", "11-Valasaravakkam(Area-11)", "12-Alandur(Area-12)",
	"13-Adyar(Area-13)", "14-Perungudi(Area-14)", "15-Sholinganallur(Area-15)",
}

var defaultCategoryNames = []string{"MC", "JR", "PS", "DFW"}

// Vocabulary holds the closed category and area sets plus the alias maps
// used to normalize user tokens.
type Vocabulary struct {
	categories []Category
	catAliases map[string]Category

	areas        []Area
	areaByNumber map[int]Area
	areaAliases  map[string]Area
}

var areaNamePattern = regexp.MustCompile(`^(\d{2})-(.+)\(Area-(\d+)\)$`)

// NewVocabulary builds a Vocabulary from configured category codes and
// canonical area names. Empty slices fall back to the built-in sets.
func NewVocabulary(categories, areaNames []string) (*Vocabulary, error) {
	if len(categories) == 0 {
		categories = defaultCategoryNames
	}
	if len(areaNames) == 0 {
		areaNames = defaultAreaNames
	}

	v := &Vocabulary{
		catAliases:   make(map[string]Category),
		areaByNumber: make(map[int]Area),
		areaAliases:  make(map[string]Area),
	}

	for _, raw := range categories {
		code := Category(strings.ToUpper(strings.TrimSpace(raw)))
		if code == "" {
			continue
		}
		v.categories = append(v.categories, code)
		v.catAliases[strings.ToLower(string(code))] = code
	}
	if len(v.categories) == 0 {
		return nil, fmt.Errorf("vocabulary: no categories configured")
	}

	for _, name := range areaNames {
		m := areaNamePattern.FindStringSubmatch(strings.TrimSpace(name))
		if m == nil {
			return nil, fmt.Errorf("vocabulary: area name %q is not of the form NN-Suburb(Area-N)", name)
		}
		num, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, fmt.Errorf("vocabulary: area number in %q: %w", name, err)
		}
		area := Area{Number: num, Name: strings.TrimSpace(name)}
		v.areas = append(v.areas, area)
		v.areaByNumber[num] = area
		v.areaAliases[strings.ToLower(area.Name)] = area
		v.areaAliases[strings.ToLower(m[2])] = area // suburb name, e.g. "adyar"
	}

	return v, nil
}

// MustDefault returns the built-in vocabulary. It never fails because the
// built-in sets are well-formed.
func MustDefault() *Vocabulary {
	v, err := NewVocabulary(nil, nil)
	if err != nil {
		panic(err)
	}
	return v
}

// Categories returns the full closed category set.
func (v *Vocabulary) Categories() []Category {
	out := make([]Category, len(v.categories))
	copy(out, v.categories)
	return out
}

// Areas returns the full closed area set.
func (v *Vocabulary) Areas() []Area {
	out := make([]Area, len(v.areas))
	copy(out, v.areas)
	return out
}

// AreaNames returns the canonical area names in order.
func (v *Vocabulary) AreaNames() []string {
	out := make([]string, 0, len(v.areas))
	for _, a := range v.areas {
		out = append(out, a.Name)
	}
	return out
}

// CategoryNames returns the category codes in order.
func (v *Vocabulary) CategoryNames() []string {
	out := make([]string, 0, len(v.categories))
	for _, c := range v.categories {
		out = append(out, string(c))
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)

// ParseCategory normalizes a single token to a category code. The second
// return is false for tokens outside the closed set.
func (v *Vocabulary) ParseCategory(token string) (Category, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.TrimSuffix(t, " trips")
	t = strings.TrimSuffix(t, " trip")
	c, ok := v.catAliases[t]
	return c, ok
}

var areaNumberPattern = regexp.MustCompile(`^area\s*-?\s*(\d{1,2})$|^(\d{1,2})$`)

// ParseArea normalizes a single token to an area. Accepted forms: the
// canonical name, the suburb name, "Area N" / "Area-N", or a bare number.
// Out-of-range numbers do not match.
func (v *Vocabulary) ParseArea(token string) (Area, bool) {
	t := strings.ToLower(strings.TrimSpace(token))

	if a, ok := v.areaAliases[t]; ok {
		return a, true
	}

	normalized := strings.TrimSpace(nonAlnum.ReplaceAllString(t, " "))
	if a, ok := v.areaAliases[normalized]; ok {
		return a, true
	}

	if m := areaNumberPattern.FindStringSubmatch(normalized); m != nil {
		numStr := m[1]
		if numStr == "" {
			numStr = m[2]
		}
		num, err := strconv.Atoi(numStr)
		if err != nil {
			return Area{}, false
		}
		a, ok := v.areaByNumber[num]
		return a, ok
	}

	return Area{}, false
}

// Period is an inclusive date range.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SingleMonth reports whether the period covers exactly one calendar month.
func (p Period) SingleMonth() bool {
	return p.Start.Year() == p.End.Year() && p.Start.Month() == p.End.Month()
}

// Label renders the period for filenames and captions, e.g. "Jun_2024" or
// "Jun_2024_to_Aug_2024".
func (p Period) Label() string {
	if p.SingleMonth() {
		return p.Start.Format("Jan_2006")
	}
	return p.Start.Format("Jan_2006") + "_to_" + p.End.Format("Jan_2006")
}
