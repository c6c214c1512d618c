// internal/report/excel.go
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/common/metrics"
	"trip-report-bot/internal/filter"
	"trip-report-bot/internal/retrieval"
	"trip-report-bot/internal/store"
)

const sheetName = "Trip_Details"

var columns = []string{
	"S.No",
	"Trip ID",
	"Vehicle Number",
	"Category",
	"Area",
	"Filling Station",
	"Trip Start",
	"Trip End",
	"Dispensed Qty",
	"Filling Qty",
	"Card Qty",
	"CMC Number",
	"Customer Name",
	"Customer Address",
	"Status",
}

// Generator renders retrieval results into a single workbook. When
// outputDir is non-empty a copy of every report is archived there. The
// vocabulary sets the "all" thresholds for file naming.
type Generator struct {
	vocab     *filter.Vocabulary
	outputDir string
	logger    logger.Logger
}

func NewGenerator(vocab *filter.Vocabulary, outputDir string, log logger.Logger) *Generator {
	return &Generator{
		vocab:     vocab,
		outputDir: outputDir,
		logger:    log.With(map[string]interface{}{"component": "report"}),
	}
}

// Generate produces the workbook bytes and a sanitized file name. An
// empty result still yields a workbook with just the header row so the
// user gets an explicit "nothing matched" artifact.
func (g *Generator) Generate(res *retrieval.Result) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, "", stderrors.NewReportFailedError(err)
	}

	if err := g.writeHeader(f); err != nil {
		return nil, "", stderrors.NewReportFailedError(err)
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}

	for i, rec := range res.Records {
		row := recordRow(i+1, rec)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, "", stderrors.NewReportFailedError(err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, "", stderrors.NewReportFailedError(err)
		}
		for c, v := range row {
			if n := len(fmt.Sprint(v)); n > widths[c] {
				widths[c] = n
			}
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, "", stderrors.NewReportFailedError(err)
		}
		if w > 50 {
			w = 50
		}
		if err := f.SetColWidth(sheetName, col, col, float64(w+2)); err != nil {
			return nil, "", stderrors.NewReportFailedError(err)
		}
	}

	// Keep the header visible while scrolling.
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, "", stderrors.NewReportFailedError(err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", stderrors.NewReportFailedError(err)
	}

	name := FileName(res, g.vocab)
	g.archive(name, buf.Bytes())
	metrics.ReportsGenerated.Inc()
	g.logger.Info("report generated", map[string]interface{}{
		"file":    name,
		"records": len(res.Records),
	})
	return buf.Bytes(), name, nil
}

// archive keeps a disk copy of the report. Failures here never block
// delivery to the user.
func (g *Generator) archive(name string, data []byte) {
	if g.outputDir == "" {
		return
	}
	unique := EnsureUnique(name, func(candidate string) bool {
		_, err := os.Stat(filepath.Join(g.outputDir, candidate))
		return err == nil
	})
	path := filepath.Join(g.outputDir, unique)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		g.logger.Warn("failed to archive report copy", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}

func (g *Generator) writeHeader(f *excelize.File) error {
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheetName, "A1", last, style)
}

func recordRow(serial int, rec store.TripRecord) []interface{} {
	return []interface{}{
		serial,
		rec.TripID,
		rec.VehicleNumber,
		rec.TripCategory,
		rec.Area,
		rec.FillingStationName,
		formatTime(rec.TripStartTime),
		formatTime(rec.TripEndTime),
		rec.DispensedQuantity,
		rec.FillingQuantity,
		rec.CardQuantity,
		rec.CMCNumber,
		rec.CustomerName,
		rec.CustomerAddress,
		rec.TripStatus,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02-Jan-2006 15:04")
}

// FileName derives a descriptive workbook name from the request. The
// vocabulary supplies the full set sizes, so a request covering every
// configured category or area is labeled "All" whatever those sets hold.
func FileName(res *retrieval.Result, vocab *filter.Vocabulary) string {
	f := res.Filter

	cats := "All"
	if len(f.Categories) > 0 && len(f.Categories) < len(vocab.Categories()) {
		cats = strings.Join(f.CategoryNames(), "-")
	}

	areas := "All_Areas"
	if n := len(f.Areas); n > 0 && n < len(vocab.Areas()) {
		if n <= 3 {
			var parts []string
			for _, a := range f.Areas {
				parts = append(parts, fmt.Sprintf("Area%d", a.Number))
			}
			areas = strings.Join(parts, "-")
		} else {
			areas = fmt.Sprintf("%d_Areas", n)
		}
	}

	period := "All_Time"
	if f.Period != nil {
		period = f.Period.Label()
	}

	return Sanitize(fmt.Sprintf("Trip_Report_%s_%s_%s.xlsx", cats, areas, period))
}
