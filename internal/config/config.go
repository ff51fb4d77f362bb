package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
)

// DefaultSensorIDs is the sensor group analysed when none is configured.
var DefaultSensorIDs = []int{99389, 98945, 61087, 61393, 99469, 99417, 99387}

type AppConfig struct {
	PurpleAirAPIKey  string
	PurpleAirBaseURL string
	STACBaseURL      string
	GeocoderAPIKey   string

	// Outbound HTTP behaviour.
	HTTPTimeout    time.Duration
	HTTPMaxRetries int

	// FetchInterval controls how often the scheduled analysis runs.
	FetchInterval time.Duration

	// In-memory report retention.
	StoreMaxHistory int           // max number of reports per plan (0 = unlimited)
	StoreMaxAge     time.Duration // max age of reports (0 = unlimited)

	Port     string
	LogLevel string
	Env      string
	DBPath   string

	Analysis AnalysisConfig
	Catalog  CatalogConfig
	MQTT     MQTTConfig
}

// AnalysisConfig describes the multi-sensor analysis and its outputs.
type AnalysisConfig struct {
	SensorIDs []int  `yaml:"sensor_ids"`
	Fields    string `yaml:"fields"`
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	Workers   int    `yaml:"workers"`

	OutputDir        string `yaml:"output_dir"`
	TemperatureChart string `yaml:"temperature_chart"`
	TimeChart        string `yaml:"time_chart"`
	Workbook         string `yaml:"workbook"`
	BaselineCSV      string `yaml:"baseline_csv,omitempty"`
}

// CatalogConfig holds defaults for catalog searches.
type CatalogConfig struct {
	BBox     string  `yaml:"bbox,omitempty"`  // "minLon,minLat,maxLon,maxLat"
	Place    string  `yaml:"place,omitempty"` // "city,state,country", resolved via geocoder
	RadiusKm float64 `yaml:"radius_km,omitempty"`
}

// MQTTConfig holds broker settings for publishing averages.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
}

// fileConfig is the YAML overlay layout.
type fileConfig struct {
	Analysis *AnalysisConfig `yaml:"analysis"`
	Catalog  *CatalogConfig  `yaml:"catalog"`
	MQTT     *MQTTConfig     `yaml:"mqtt"`
}

// Plan converts the analysis section into an analysis plan.
func (a AnalysisConfig) Plan() airquality.AnalysisPlan {
	return airquality.AnalysisPlan{
		SensorIDs: append([]int(nil), a.SensorIDs...),
		Fields:    a.Fields,
		Start:     a.Start,
		End:       a.End,
	}
}

// OutputPath joins name onto OutputDir.
func (a AnalysisConfig) OutputPath(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Join(a.OutputDir, name)
}

// Load reads configuration from environment with sensible defaults. When
// ANALYSIS_CONFIG names a YAML file its sections override the environment.
func Load() (*AppConfig, error) {
	return LoadFile(os.Getenv("ANALYSIS_CONFIG"))
}

// LoadFile reads the environment, overlays the YAML file at path (if any)
// and validates the merged result once.
func LoadFile(path string) (*AppConfig, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.PurpleAirAPIKey = os.Getenv("PURPLEAIR_API_KEY")
	cfg.PurpleAirBaseURL = getenvDefault("PURPLEAIR_BASE_URL", "https://api.purpleair.com")
	cfg.STACBaseURL = getenvDefault("STAC_BASE_URL", "https://earth-search.aws.element84.com/v1")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	cfg.HTTPMaxRetries = getenvInt("HTTP_MAX_RETRIES", 0)

	// Scheduler interval: default once a day, matching the daily buckets.
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "24h"); err != nil {
		return nil, err
	}

	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 30)
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "720h"); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.Env = getenvDefault("APP_ENV", "development")
	cfg.DBPath = getenvDefault("DB_PATH", "airquality.db")

	ids, err := parseSensorIDs(os.Getenv("ANALYSIS_SENSOR_IDS"))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = append([]int(nil), DefaultSensorIDs...)
	}
	cfg.Analysis = AnalysisConfig{
		SensorIDs:        ids,
		Fields:           getenvDefault("ANALYSIS_FIELDS", airquality.DefaultHistoryFields),
		Start:            getenvDefault("ANALYSIS_START", "2022/06/01"),
		End:              getenvDefault("ANALYSIS_END", "2022/08/31"),
		Workers:          getenvInt("ANALYSIS_WORKERS", airquality.DefaultWorkers),
		OutputDir:        getenvDefault("ANALYSIS_OUTPUT_DIR", "."),
		TemperatureChart: getenvDefault("ANALYSIS_TEMPERATURE_CHART", "pm_vs_temperature.png"),
		TimeChart:        getenvDefault("ANALYSIS_TIME_CHART", "pm_vs_time.png"),
		Workbook:         getenvDefault("ANALYSIS_WORKBOOK", "averages.xlsx"),
		BaselineCSV:      os.Getenv("BASELINE_CSV"),
	}

	cfg.Catalog = CatalogConfig{
		BBox:     os.Getenv("CATALOG_BBOX"),
		Place:    os.Getenv("CATALOG_PLACE"),
		RadiusKm: getenvFloat("CATALOG_RADIUS_KM", 10),
	}

	cfg.MQTT = MQTTConfig{
		Broker:      os.Getenv("MQTT_BROKER"),
		TopicPrefix: getenvDefault("MQTT_TOPIC_PREFIX", "airquality"),
		Username:    os.Getenv("MQTT_USERNAME"),
		Password:    os.Getenv("MQTT_PASSWORD"),
	}
	cfg.MQTT.Enabled = cfg.MQTT.Broker != ""

	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFile overlays the sections present in a YAML file. Zero values in
// the file leave the current settings untouched.
func (c *AppConfig) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if a := fc.Analysis; a != nil {
		if len(a.SensorIDs) > 0 {
			c.Analysis.SensorIDs = a.SensorIDs
		}
		setString(&c.Analysis.Fields, a.Fields)
		setString(&c.Analysis.Start, a.Start)
		setString(&c.Analysis.End, a.End)
		if a.Workers > 0 {
			c.Analysis.Workers = a.Workers
		}
		setString(&c.Analysis.OutputDir, a.OutputDir)
		setString(&c.Analysis.TemperatureChart, a.TemperatureChart)
		setString(&c.Analysis.TimeChart, a.TimeChart)
		setString(&c.Analysis.Workbook, a.Workbook)
		setString(&c.Analysis.BaselineCSV, a.BaselineCSV)
	}
	if cat := fc.Catalog; cat != nil {
		setString(&c.Catalog.BBox, cat.BBox)
		setString(&c.Catalog.Place, cat.Place)
		if cat.RadiusKm > 0 {
			c.Catalog.RadiusKm = cat.RadiusKm
		}
	}
	if m := fc.MQTT; m != nil {
		c.MQTT.Enabled = m.Enabled
		setString(&c.MQTT.Broker, m.Broker)
		setString(&c.MQTT.TopicPrefix, m.TopicPrefix)
		setString(&c.MQTT.Username, m.Username)
		setString(&c.MQTT.Password, m.Password)
	}
	return nil
}

// Validate checks the analysis window and optional catalog bbox.
func (c *AppConfig) Validate() error {
	if _, err := airquality.ParseDateRange(c.Analysis.Start, c.Analysis.End); err != nil {
		return fmt.Errorf("invalid analysis window: %w", err)
	}
	if c.Catalog.BBox != "" {
		if _, err := airquality.ParseBBox(c.Catalog.BBox); err != nil {
			return fmt.Errorf("invalid CATALOG_BBOX: %w", err)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt is enabled but no broker is configured")
	}
	return nil
}

func parseSensorIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid sensor id %q in ANALYSIS_SENSOR_IDS", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
