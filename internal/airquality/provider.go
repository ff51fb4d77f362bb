package airquality

import (
	"context"
	"time"
)

// HistoryFetcher retrieves daily-averaged history for one sensor.
// HTTP failures are reported in the result; the error is reserved for
// invalid input and transport problems.
type HistoryFetcher interface {
	History(ctx context.Context, req HistoryRequest) (HistoryResult, error)
}

// CatalogSearcher runs a catalog search.
type CatalogSearcher interface {
	Search(ctx context.Context, q CatalogQuery) (CatalogResult, error)
}

// KeyChecker validates an API credential.
type KeyChecker interface {
	CheckKey(ctx context.Context, key string) (KeyCheckResult, error)
}

// ReportSink consumes a finished report, e.g. to render charts or persist
// rows. Sinks may append artifact paths to the report.
type ReportSink interface {
	Name() string
	Handle(ctx context.Context, report *Report) error
}

// Store is the contract the in-memory store (and any future persistent store) must satisfy.
type Store interface {
	SaveReport(key string, report Report)
	GetLatest(key string) (Report, error)
	GetRange(key string, from, to time.Time) ([]Report, error)
}
