// internal/report/excel_test.go
package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/filter"
	"trip-report-bot/internal/retrieval"
	"trip-report-bot/internal/store"
)

func testResult(t *testing.T, records ...store.TripRecord) *retrieval.Result {
	t.Helper()
	vocab := filter.MustDefault()
	p, err := filter.ResolvePeriod("jan 2025", time.Now(), time.UTC)
	require.NoError(t, err)
	return &retrieval.Result{
		Filter: filter.Filter{
			Categories: []filter.Category{filter.CategoryMC},
			Areas:      vocab.Areas()[:2],
			Period:     p,
		},
		Records:    records,
		SubQueries: 2,
	}
}

func TestGenerate(t *testing.T) {
	g := NewGenerator(filter.MustDefault(), "", logger.NewTestLogger(t))

	res := testResult(t,
		store.TripRecord{
			TripID:             "T-1001",
			VehicleNumber:      "TN01AB1234",
			TripCategory:       "MC",
			TripStatus:         "COMPLETED",
			Area:               "01-Thiruvottiyur(Area-1)",
			FillingStationName: "Thiruvottiyur North",
			TripStartTime:      time.Date(2025, time.January, 3, 6, 30, 0, 0, time.UTC),
			TripEndTime:        time.Date(2025, time.January, 3, 9, 15, 0, 0, time.UTC),
			DispensedQuantity:  12500,
		},
		store.TripRecord{
			TripID:       "T-1002",
			TripCategory: "MC",
			TripStatus:   "COMPLETED",
			Area:         "02-Manali(Area-2)",
		},
	)

	data, name, err := g.Generate(res)
	require.NoError(t, err)
	assert.Equal(t, "Trip_Report_MC_Area1-Area2_Jan_2025.xlsx", name)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "S.No", rows[0][0])
	assert.Equal(t, "Trip ID", rows[0][1])
	assert.Equal(t, "T-1001", rows[1][1])
	assert.Equal(t, "TN01AB1234", rows[1][2])
	assert.Equal(t, "03-Jan-2025 06:30", rows[1][6])
	assert.Equal(t, "T-1002", rows[2][1])
}

func TestGenerateEmptyResult(t *testing.T) {
	g := NewGenerator(filter.MustDefault(), "", logger.NewTestLogger(t))

	data, _, err := g.Generate(testResult(t))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}

func TestGenerateArchivesCopy(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(filter.MustDefault(), dir, logger.NewTestLogger(t))

	res := testResult(t, store.TripRecord{TripID: "T-1", TripCategory: "MC", TripStatus: "COMPLETED"})

	data, name, err := g.Generate(res)
	require.NoError(t, err)

	archived, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, data, archived)

	// A second run with the same filter must not overwrite the first copy.
	_, _, err = g.Generate(res)
	require.NoError(t, err)

	base := strings.TrimSuffix(name, ".xlsx")
	_, err = os.Stat(filepath.Join(dir, base+"-1.xlsx"))
	require.NoError(t, err)
}

func TestFileName(t *testing.T) {
	vocab := filter.MustDefault()
	p, err := filter.ResolvePeriod("jan to mar 2025", time.Now(), time.UTC)
	require.NoError(t, err)

	tests := []struct {
		name string
		f    filter.Filter
		want string
	}{
		{
			name: "all categories all areas",
			f:    filter.Filter{Categories: vocab.Categories(), Areas: vocab.Areas(), Period: p},
			want: "Trip_Report_All_All_Areas_Jan_2025_to_Mar_2025.xlsx",
		},
		{
			name: "many areas summarized",
			f:    filter.Filter{Categories: []filter.Category{filter.CategoryPS}, Areas: vocab.Areas()[:7], Period: p},
			want: "Trip_Report_PS_7_Areas_Jan_2025_to_Mar_2025.xlsx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FileName(&retrieval.Result{Filter: tt.f}, vocab)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileNameConfiguredVocabulary(t *testing.T) {
	// "All" follows the configured set sizes, not the default ones.
	vocab, err := filter.NewVocabulary(
		[]string{"MC", "JR"},
		[]string{"01-North(Area-1)", "02-South(Area-2)"},
	)
	require.NoError(t, err)
	p, err := filter.ResolvePeriod("jan 2025", time.Now(), time.UTC)
	require.NoError(t, err)

	full := filter.Filter{Categories: vocab.Categories(), Areas: vocab.Areas(), Period: p}
	assert.Equal(t, "Trip_Report_All_All_Areas_Jan_2025.xlsx",
		FileName(&retrieval.Result{Filter: full}, vocab))

	partial := filter.Filter{Categories: vocab.Categories()[:1], Areas: vocab.Areas()[:1], Period: p}
	assert.Equal(t, "Trip_Report_MC_Area1_Jan_2025.xlsx",
		FileName(&retrieval.Result{Filter: partial}, vocab))
}
