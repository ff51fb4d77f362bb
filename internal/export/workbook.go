package export

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/logger"
)

// Sheet names used in exported workbooks.
const (
	SheetAverage  = "average"
	SheetCombined = "combined"
	SheetSensors  = "sensors"
	SheetBaseline = "baseline"
)

// WorkbookWriter is a report sink that writes the report tables to an xlsx file.
type WorkbookWriter struct {
	path string
	log  logger.Logger
}

func NewWorkbookWriter(path string, log logger.Logger) *WorkbookWriter {
	if log == nil {
		log = logger.Discard()
	}
	return &WorkbookWriter{path: path, log: log.WithField("component", "workbook_writer")}
}

func (w *WorkbookWriter) Name() string { return "workbook" }

func (w *WorkbookWriter) Handle(_ context.Context, report *airquality.Report) error {
	if err := WriteWorkbook(w.path, *report); err != nil {
		return err
	}
	report.Artifacts = append(report.Artifacts, w.path)
	w.log.Infof("wrote %s (%d averaged rows)", w.path, report.Average.Len())
	return nil
}

// WriteWorkbook writes the averaged table, the combined per-sensor rows, the
// sensor outcomes and, when loaded, the baseline rows to path.
func WriteWorkbook(path string, report airquality.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetDocProps(&excelize.DocProperties{
		Title:       "Sensor averages",
		Subject:     "Daily averaged air quality readings",
		Creator:     "airquality-aggregation",
		Description: fmt.Sprintf("Analysis %s, %s to %s", report.ID, report.Plan.Start, report.Plan.End),
		Created:     report.CreatedAt.Format(time.RFC3339),
	})

	if err := writeTable(f, SheetAverage, report.Average); err != nil {
		return fmt.Errorf("failed to create %s sheet: %w", SheetAverage, err)
	}
	if err := writeTable(f, SheetCombined, report.Combined); err != nil {
		return fmt.Errorf("failed to create %s sheet: %w", SheetCombined, err)
	}
	if err := writeSensors(f, report.Sensors); err != nil {
		return fmt.Errorf("failed to create %s sheet: %w", SheetSensors, err)
	}
	if b := report.Baseline; b != nil && len(b.Rows) > 0 {
		if err := writeBaseline(f, b); err != nil {
			return fmt.Errorf("failed to create %s sheet: %w", SheetBaseline, err)
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetAverage); err == nil {
		f.SetActiveSheet(idx)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating workbook directory: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, t airquality.Table) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	header := make([]interface{}, 0, len(t.Fields)+2)
	for _, c := range t.Columns() {
		header = append(header, c)
	}
	header = append(header, "date")
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, r := range t.Rows {
		row := make([]interface{}, 0, len(r.Values)+2)
		row = append(row, r.Timestamp)
		for _, v := range r.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row = append(row, nil)
				continue
			}
			row = append(row, v)
		}
		row = append(row, time.Unix(r.Timestamp, 0).UTC().Format("2006-01-02"))

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeSensors(f *excelize.File, sensors []airquality.SensorOutcome) error {
	if _, err := f.NewSheet(SheetSensors); err != nil {
		return err
	}
	header := []interface{}{"sensor_id", "ok", "status", "rows", "message"}
	if err := f.SetSheetRow(SheetSensors, "A1", &header); err != nil {
		return err
	}
	for i, s := range sensors {
		msg := s.Message
		if s.Error != "" {
			msg = s.Error
		}
		row := []interface{}{s.SensorID, s.OK, s.StatusCode, s.Rows, msg}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSensors, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeBaseline(f *excelize.File, b *airquality.Baseline) error {
	if _, err := f.NewSheet(SheetBaseline); err != nil {
		return err
	}
	header := make([]interface{}, len(b.Columns))
	for i, c := range b.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetBaseline, "A1", &header); err != nil {
		return err
	}
	for i, rec := range b.Rows {
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetBaseline, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
