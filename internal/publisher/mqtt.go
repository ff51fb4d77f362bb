package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/config"
	"github.com/i474232898/airquality-aggregation/internal/logger"
)

const (
	defaultTopicPrefix = "airquality"
	publishTimeout     = 10 * time.Second
)

// Publisher sends averaged analysis rows to an MQTT broker.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	log         logger.Logger
}

// New connects to the configured broker.
func New(cfg config.MQTTConfig, log logger.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}
	if log == nil {
		log = logger.Discard()
	}

	topicPrefix := cfg.TopicPrefix
	if topicPrefix == "" {
		topicPrefix = defaultTopicPrefix
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("airquality-aggregation")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		log:         log.WithField("component", "mqtt_publisher"),
	}, nil
}

// AveragePayload is the message published for each analysis.
type AveragePayload struct {
	ReportID  string                `json:"report_id"`
	CreatedAt string                `json:"created_at"`
	Start     string                `json:"start"`
	End       string                `json:"end"`
	Sensors   int                   `json:"sensors"`
	Failed    []int                 `json:"failed,omitempty"`
	Rows      []map[string]*float64 `json:"rows"`
}

func buildAveragePayload(report *airquality.Report) AveragePayload {
	p := AveragePayload{
		ReportID:  report.ID,
		CreatedAt: report.CreatedAt.UTC().Format(time.RFC3339),
		Start:     report.Plan.Start,
		End:       report.Plan.End,
		Sensors:   len(report.Sensors),
		Rows:      make([]map[string]*float64, 0, report.Average.Len()),
	}
	for _, s := range report.Failed() {
		p.Failed = append(p.Failed, s.SensorID)
	}

	for _, r := range report.Average.Rows {
		ts := float64(r.Timestamp)
		row := map[string]*float64{airquality.TimestampColumn: &ts}
		for i, f := range report.Average.Fields {
			if f == airquality.SensorIDColumn {
				continue
			}
			v := r.Values[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row[f] = nil
				continue
			}
			row[f] = &v
		}
		p.Rows = append(p.Rows, row)
	}
	return p
}

// Topic returns the topic averages are published to.
func (p *Publisher) Topic() string {
	return p.topicPrefix + "/average"
}

func (p *Publisher) Name() string { return "mqtt" }

// Handle publishes the report's averaged rows.
func (p *Publisher) Handle(ctx context.Context, report *airquality.Report) error {
	body, err := json.Marshal(buildAveragePayload(report))
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	token := p.client.Publish(p.Topic(), 1, true, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publishing to %s: timed out", p.Topic())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.Topic(), err)
	}

	p.log.Infof("published %d averaged rows to %s", report.Average.Len(), p.Topic())
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
