package airquality

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DailyAverageMinutes is the history bucket size requested upstream.
const DailyAverageMinutes = 1440

// DefaultHistoryFields are the readings collected by the analysis.
const DefaultHistoryFields = "temperature,pm2.5_atm,pm10.0_atm"

// Outcome describes how an upstream call ended. Any status other than 200
// is a failure; Message then carries the upstream body for inspection.
type Outcome struct {
	OK         bool   `json:"ok"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
}

// Success builds a successful outcome.
func Success(status int) Outcome {
	return Outcome{OK: true, StatusCode: status}
}

// Failure builds a failed outcome with the given upstream status and message.
func Failure(status int, message string) Outcome {
	return Outcome{StatusCode: status, Message: message}
}

// HistoryRequest selects a daily-averaged history window for one sensor.
type HistoryRequest struct {
	SensorID int    `json:"sensorId" validate:"required,gt=0"`
	Fields   string `json:"fields" validate:"required"`
	Start    string `json:"start" validate:"required"`
	End      string `json:"end" validate:"required"`
	// APIKey overrides the fetcher's configured credential when set.
	APIKey string `json:"-"`
}

// FieldList splits Fields on commas, dropping blanks.
func (r HistoryRequest) FieldList() []string {
	return SplitFields(r.Fields)
}

// SplitFields splits a comma separated field list, dropping blanks.
func SplitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// HistoryResult is the outcome of one sensor history request. On success
// Payload holds the upstream body exactly as received.
type HistoryResult struct {
	SensorID int `json:"sensorId"`
	Outcome
	Payload json.RawMessage `json:"payload,omitempty"`
	// Fields echoes the requested fields, used when the payload omits them.
	Fields []string `json:"-"`
}

// ErrNoPayload is returned when a table is requested from a failed result.
var ErrNoPayload = errors.New("result carries no payload")

// Table decodes the payload's data rows. Column names come from the
// payload's own "fields" list when present, otherwise from the request.
func (r HistoryResult) Table() (Table, error) {
	if !r.OK || len(r.Payload) == 0 {
		return Table{}, ErrNoPayload
	}

	var body struct {
		Fields []string     `json:"fields"`
		Data   [][]*float64 `json:"data"`
	}
	if err := json.Unmarshal(r.Payload, &body); err != nil {
		return Table{}, fmt.Errorf("decoding history payload: %w", err)
	}

	fields := r.Fields
	if len(body.Fields) > 1 && body.Fields[0] == TimestampColumn {
		fields = body.Fields[1:]
	}
	if len(fields) == 0 && len(body.Data) > 0 {
		return Table{}, fmt.Errorf("history payload has %d rows but no field names", len(body.Data))
	}

	rows, err := rowsFromCells(body.Data, len(fields))
	if err != nil {
		return Table{}, fmt.Errorf("sensor %d: %w", r.SensorID, err)
	}
	return Table{Fields: append([]string(nil), fields...), Rows: rows}, nil
}

// KeyCheckResult reports whether an API key was accepted.
type KeyCheckResult struct {
	Outcome
	KeyType string `json:"keyType,omitempty"`
	Body    string `json:"body,omitempty"`
}

// Catalog search defaults.
const CatalogLimit = 10000

var (
	CatalogCollections = []string{"sentinel-2-l2a", "landsat-c2-l2"}
	CatalogInclude     = []string{"properties", "id"}
	CatalogExclude     = []string{"bbox", "geometry", "assets", "stac_version", "stac_extensions", "type"}
)

// ErrInvalidBBox is returned for malformed bounding boxes.
var ErrInvalidBBox = errors.New("invalid bounding box")

// BBox is [minLon, minLat, maxLon, maxLat] in WGS84 degrees.
type BBox [4]float64

// Validate checks coordinate ranges and corner order.
func (b BBox) Validate() error {
	minLon, minLat, maxLon, maxLat := b[0], b[1], b[2], b[3]
	switch {
	case minLon < -180 || maxLon > 180:
		return fmt.Errorf("%w: longitude out of range", ErrInvalidBBox)
	case minLat < -90 || maxLat > 90:
		return fmt.Errorf("%w: latitude out of range", ErrInvalidBBox)
	case minLon > maxLon || minLat > maxLat:
		return fmt.Errorf("%w: min corner exceeds max corner", ErrInvalidBBox)
	}
	return nil
}

// IsZero reports whether no box was given.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("%w: want 4 comma separated numbers, got %q", ErrInvalidBBox, s)
	}
	var b BBox
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("%w: %q", ErrInvalidBBox, p)
		}
		b[i] = v
	}
	return b, b.Validate()
}

// CatalogQuery selects catalog items intersecting BBox within a date window.
type CatalogQuery struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
	BBox  BBox   `json:"bbox"`
	// Collections and Limit default to CatalogCollections and CatalogLimit.
	Collections []string `json:"collections,omitempty"`
	Limit       int      `json:"limit,omitempty" validate:"omitempty,gt=0,lte=10000"`
}

// CatalogResult is the outcome of one catalog search.
type CatalogResult struct {
	Outcome
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CatalogRecord is the subset of a catalog item surfaced to callers.
type CatalogRecord struct {
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
}

// Records decodes the features of a successful search.
func (r CatalogResult) Records() ([]CatalogRecord, error) {
	if !r.OK || len(r.Payload) == 0 {
		return nil, ErrNoPayload
	}
	var body struct {
		Features []CatalogRecord `json:"features"`
	}
	if err := json.Unmarshal(r.Payload, &body); err != nil {
		return nil, fmt.Errorf("decoding catalog payload: %w", err)
	}
	return body.Features, nil
}

// AnalysisPlan describes one multi-sensor analysis run.
type AnalysisPlan struct {
	SensorIDs []int  `json:"sensorIds" validate:"required,min=1,dive,gt=0"`
	Fields    string `json:"fields" validate:"required"`
	Start     string `json:"start" validate:"required"`
	End       string `json:"end" validate:"required"`
}

// Key returns a canonical string key for indexing this plan in stores.
func (p AnalysisPlan) Key() string {
	ids := make([]string, len(p.SensorIDs))
	for i, id := range p.SensorIDs {
		ids[i] = strconv.Itoa(id)
	}
	return strings.Join(ids, ",") + "|" + p.Fields + "|" + p.Start + "-" + p.End
}

// SensorOutcome records how one sensor's fetch went during an analysis.
type SensorOutcome struct {
	SensorID int `json:"sensorId"`
	Outcome
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

// Baseline is a reference dataset loaded alongside an analysis.
type Baseline struct {
	Source   string     `json:"source"`
	Columns  []string   `json:"columns"`
	RowCount int        `json:"rowCount"`
	Rows     [][]string `json:"-"`
}

// Report is the result of one analysis run.
type Report struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"createdAt"` // always UTC
	Plan      AnalysisPlan             `json:"plan"`
	Sensors   []SensorOutcome          `json:"sensors"`
	Combined  Table                    `json:"combined"`
	Average   Table                    `json:"average"`
	Summary   map[string]ColumnSummary `json:"summary,omitempty"`
	Baseline  *Baseline                `json:"baseline,omitempty"`
	Artifacts []string                 `json:"artifacts,omitempty"`
}

// Failed returns the outcomes of sensors that produced no rows.
func (r Report) Failed() []SensorOutcome {
	var out []SensorOutcome
	for _, s := range r.Sensors {
		if !s.OK {
			out = append(out, s)
		}
	}
	return out
}
