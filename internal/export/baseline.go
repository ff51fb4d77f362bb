package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/logger"
)

// ReadBaselineCSV loads a reference CSV (header row first) such as a
// regulatory monitor export covering the same window.
func ReadBaselineCSV(path string) (*airquality.Baseline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening baseline: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("baseline %s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading baseline header: %w", err)
	}

	b := &airquality.Baseline{Source: path, Columns: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading baseline row %d: %w", len(b.Rows)+2, err)
		}
		b.Rows = append(b.Rows, rec)
	}
	b.RowCount = len(b.Rows)
	return b, nil
}

// BaselineLoader is a report sink that attaches a baseline CSV to the report.
// Register it before the workbook writer so the rows are exported too.
type BaselineLoader struct {
	path string
	log  logger.Logger
}

func NewBaselineLoader(path string, log logger.Logger) *BaselineLoader {
	if log == nil {
		log = logger.Discard()
	}
	return &BaselineLoader{path: path, log: log.WithField("component", "baseline_loader")}
}

func (b *BaselineLoader) Name() string { return "baseline" }

func (b *BaselineLoader) Handle(_ context.Context, report *airquality.Report) error {
	baseline, err := ReadBaselineCSV(b.path)
	if err != nil {
		return err
	}
	report.Baseline = baseline
	b.log.Infof("loaded baseline %s: %d rows, %d columns", b.path, baseline.RowCount, len(baseline.Columns))
	return nil
}
