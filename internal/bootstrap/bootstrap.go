// Package bootstrap wires configuration into a ready-to-use service for
// both the server and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/airquality/providers"
	"github.com/i474232898/airquality-aggregation/internal/chart"
	"github.com/i474232898/airquality-aggregation/internal/config"
	"github.com/i474232898/airquality-aggregation/internal/database"
	"github.com/i474232898/airquality-aggregation/internal/export"
	"github.com/i474232898/airquality-aggregation/internal/geo"
	"github.com/i474232898/airquality-aggregation/internal/logger"
	"github.com/i474232898/airquality-aggregation/internal/publisher"
	"github.com/i474232898/airquality-aggregation/internal/store"
)

// ErrNoCatalogArea is returned when neither a bbox nor a place is configured.
var ErrNoCatalogArea = errors.New("no catalog bbox or place configured")

// Options select the optional parts of the stack.
type Options struct {
	// Outputs registers the chart, workbook and baseline sinks.
	Outputs bool
	// Database opens the sqlite reading store and registers its sink.
	Database bool
	// MQTT connects the publisher when the config enables it.
	MQTT bool
}

// App holds the wired components.
type App struct {
	Config    *config.AppConfig
	Log       logger.Logger
	Service   *airquality.Service
	Store     *store.MemoryStore
	DB        *database.DB
	Publisher *publisher.Publisher
	Geocoder  *geo.Geocoder
}

// New builds the providers, sinks and service described by cfg.
func New(cfg *config.AppConfig, log logger.Logger, opts Options) (*App, error) {
	if log == nil {
		log = logger.Discard()
	}
	a := &App{Config: cfg, Log: log}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	backoff := providers.DefaultBackoff
	backoff.MaxRetries = cfg.HTTPMaxRetries

	purpleAir := providers.NewPurpleAirProvider(httpClient, cfg.PurpleAirAPIKey,
		providers.WithBaseURL(cfg.PurpleAirBaseURL),
		providers.WithBackoff(backoff),
		providers.WithLogger(log),
	)
	stac := providers.NewSTACProvider(httpClient,
		providers.WithBaseURL(cfg.STACBaseURL),
		providers.WithBackoff(backoff),
		providers.WithLogger(log),
	)

	var sinks []airquality.ReportSink
	if opts.Outputs {
		an := cfg.Analysis
		if an.BaselineCSV != "" {
			sinks = append(sinks, export.NewBaselineLoader(an.BaselineCSV, log))
		}
		sinks = append(sinks,
			chart.NewRenderer(chart.DefaultOptions(an.OutputPath(an.TemperatureChart), an.OutputPath(an.TimeChart)), log),
		)
		if an.Workbook != "" {
			sinks = append(sinks, export.NewWorkbookWriter(an.OutputPath(an.Workbook), log))
		}
	}

	if opts.Database {
		db, err := database.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.DB = db
		sinks = append(sinks, database.NewSink(db, log))
	}

	if opts.MQTT && cfg.MQTT.Enabled {
		pub, err := publisher.New(cfg.MQTT, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating publisher: %w", err)
		}
		a.Publisher = pub
		sinks = append(sinks, pub)
	}

	a.Store = store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
	a.Service = airquality.NewService(a.Store,
		airquality.Providers{History: purpleAir, Catalog: stac, Keys: purpleAir},
		airquality.WithSinks(sinks...),
		airquality.WithWorkers(cfg.Analysis.Workers),
		airquality.WithLogger(log),
	)
	a.Geocoder = geo.NewGeocoder(cfg.GeocoderAPIKey)

	return a, nil
}

// CatalogBBox returns the configured catalog area, geocoding the place
// when no explicit bbox is set.
func (a *App) CatalogBBox(ctx context.Context) (airquality.BBox, error) {
	c := a.Config.Catalog
	switch {
	case c.BBox != "":
		return airquality.ParseBBox(c.BBox)
	case c.Place != "":
		return a.Geocoder.BBox(ctx, c.Place, c.RadiusKm)
	default:
		return airquality.BBox{}, ErrNoCatalogArea
	}
}

// Close releases the database and broker connections.
func (a *App) Close() {
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warnf("closing database: %v", err)
		}
	}
}
