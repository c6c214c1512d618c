// internal/filter/validate_test.go
package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"trip-report-bot/internal/common/logger"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	return NewValidator(MustDefault(), time.UTC, func() time.Time { return testNow }, nil)
}

func TestValidateLogsDroppedTokens(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	v := NewValidator(MustDefault(), time.UTC,
		func() time.Time { return testNow }, logger.NewZapAdapter(zap.New(core)))

	f, missing := v.Validate(Candidate{
		Categories: []string{"MC", "bogus"},
		Areas:      []string{"Area-99"},
		PeriodText: "sometime soon",
	})

	assert.Equal(t, []Category{CategoryMC}, f.Categories)
	assert.Empty(t, f.Areas)
	assert.Contains(t, missing, FieldAreas)

	entries := logs.FilterMessage("dropped unusable token").All()
	require.Len(t, entries, 3)
	first := entries[0].ContextMap()
	assert.Equal(t, "categories", first["field"])
	assert.Equal(t, "bogus", first["token"])
	assert.Contains(t, first["error"], "VALIDATION_REJECTED")
}

func TestValidate(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name           string
		candidate      Candidate
		wantCategories []Category
		wantAreaNums   []int
		wantPeriod     bool
		wantMissing    []Field
	}{
		{
			name: "complete request",
			candidate: Candidate{
				Categories: []string{"MC", "JR"},
				Areas:      []string{"Area-1", "Area-5"},
				PeriodText: "jan 2025",
			},
			wantCategories: []Category{CategoryMC, CategoryJR},
			wantAreaNums:   []int{1, 5},
			wantPeriod:     true,
			wantMissing:    nil,
		},
		{
			name: "unknown category tokens dropped silently",
			candidate: Candidate{
				Categories: []string{"diesel", "MC", "petrol"},
				Areas:      []string{"3"},
				PeriodText: "feb 2025",
			},
			wantCategories: []Category{CategoryMC},
			wantAreaNums:   []int{3},
			wantPeriod:     true,
			wantMissing:    nil,
		},
		{
			name: "only unknown categories stays missing",
			candidate: Candidate{
				Categories: []string{"diesel"},
				Areas:      []string{"3"},
				PeriodText: "feb 2025",
			},
			wantCategories: nil,
			wantAreaNums:   []int{3},
			wantPeriod:     true,
			wantMissing:    []Field{FieldCategories},
		},
		{
			name: "out of range area rejected",
			candidate: Candidate{
				Categories: []string{"PS"},
				Areas:      []string{"16", "99"},
				PeriodText: "mar 2025",
			},
			wantCategories: []Category{CategoryPS},
			wantAreaNums:   nil,
			wantPeriod:     true,
			wantMissing:    []Field{FieldAreas},
		},
		{
			name: "unparseable period stays missing",
			candidate: Candidate{
				Categories: []string{"MC"},
				Areas:      []string{"1"},
				PeriodText: "sometime recently",
			},
			wantCategories: []Category{CategoryMC},
			wantAreaNums:   []int{1},
			wantPeriod:     false,
			wantMissing:    []Field{FieldPeriod},
		},
		{
			name:        "empty candidate misses everything",
			candidate:   Candidate{},
			wantMissing: []Field{FieldPeriod, FieldAreas, FieldCategories},
		},
		{
			name: "duplicate tokens deduplicated",
			candidate: Candidate{
				Categories: []string{"MC", "mc", "MC trips"},
				Areas:      []string{"Area-2", "2"},
				PeriodText: "apr 2025",
			},
			wantCategories: []Category{CategoryMC},
			wantAreaNums:   []int{2},
			wantPeriod:     true,
			wantMissing:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, missing := v.Validate(tt.candidate)
			assert.Equal(t, tt.wantCategories, f.Categories)
			assert.Equal(t, tt.wantMissing, missing)
			if tt.wantPeriod {
				assert.NotNil(t, f.Period)
			} else {
				assert.Nil(t, f.Period)
			}
			var nums []int
			for _, a := range f.Areas {
				nums = append(nums, a.Number)
			}
			assert.Equal(t, tt.wantAreaNums, nums)
		})
	}
}

func TestValidateAllExpansion(t *testing.T) {
	v := newTestValidator(t)

	f, missing := v.Validate(Candidate{
		AllCategories: true,
		AllAreas:      true,
		PeriodText:    "2024",
	})
	assert.Empty(t, missing)
	assert.Len(t, f.Categories, 4)
	assert.Len(t, f.Areas, 15)

	// The literal token "all" expands the same way.
	f, _ = v.Validate(Candidate{
		Categories: []string{"all"},
		Areas:      []string{"All"},
		PeriodText: "2024",
	})
	assert.Len(t, f.Categories, 4)
	assert.Len(t, f.Areas, 15)
}

func TestValidateIdempotent(t *testing.T) {
	v := newTestValidator(t)
	c := Candidate{
		Categories: []string{"MC", "unknown"},
		Areas:      []string{"Thiruvottiyur", "40"},
		PeriodText: "may 2025",
	}

	first, m1 := v.Validate(c)
	second, m2 := v.Validate(c)
	assert.Equal(t, first, second)
	assert.Equal(t, m1, m2)
}

func TestMerge(t *testing.T) {
	v := newTestValidator(t)

	base, _ := v.Validate(Candidate{Categories: []string{"MC"}})
	delta, _ := v.Validate(Candidate{
		Categories: []string{"JR"},
		Areas:      []string{"Area-4"},
		PeriodText: "jan 2025",
	})

	merged := Merge(base, delta)

	// The already-valid categories survive; the delta fills the gaps only.
	assert.Equal(t, []Category{CategoryMC}, merged.Categories)
	require.Len(t, merged.Areas, 1)
	assert.Equal(t, 4, merged.Areas[0].Number)
	assert.NotNil(t, merged.Period)
	assert.True(t, merged.Complete())
}
