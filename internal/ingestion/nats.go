// Package ingestion consumes telemetry samples from a NATS subject and feeds
// them through the diagnosis pipeline, as an alternative to the HTTP and
// websocket ingest paths.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fleetsentry/fleetsentry/internal/alerts"
	"github.com/fleetsentry/fleetsentry/internal/diagnosis"
	"github.com/fleetsentry/fleetsentry/internal/observability"
	"github.com/fleetsentry/fleetsentry/internal/telemetry"
	"github.com/fleetsentry/fleetsentry/internal/ueba"
)

// Config holds the NATS consumer settings.
type Config struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// Consumer subscribes to the telemetry subject and evaluates each sample.
// Instances in the same queue group share the load.
type Consumer struct {
	conn     *nats.Conn
	sub      *nats.Subscription
	cfg      Config
	pipeline *diagnosis.Pipeline
	alertSvc *alerts.Service
	verdicts *ueba.VerdictCache
	obs      *observability.Telemetry
	logger   *zap.Logger
}

// NewConsumer connects to NATS. The subscription starts when Start is called.
func NewConsumer(
	cfg Config,
	pipeline *diagnosis.Pipeline,
	alertSvc *alerts.Service,
	verdicts *ueba.VerdictCache,
	obs *observability.Telemetry,
) (*Consumer, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("fleetsentry-ingest"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	return &Consumer{
		conn:     conn,
		cfg:      cfg,
		pipeline: pipeline,
		alertSvc: alertSvc,
		verdicts: verdicts,
		obs:      obs,
		logger:   obs.Logger(),
	}, nil
}

// Start subscribes to the configured subject. Message handling runs on the
// NATS delivery goroutine; the pipeline itself is synchronous and cheap.
func (c *Consumer) Start() error {
	sub, err := c.conn.QueueSubscribe(c.cfg.Subject, c.cfg.Queue, c.handle)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", c.cfg.Subject, err)
	}
	c.sub = sub

	c.logger.Info("telemetry consumer started",
		zap.String("subject", c.cfg.Subject),
		zap.String("queue", c.cfg.Queue),
	)
	return nil
}

func (c *Consumer) handle(msg *nats.Msg) {
	ctx, span := c.obs.StartSpan(context.Background(), "ingestion.handle")
	defer span.End()

	var sample telemetry.Sample
	if err := json.Unmarshal(msg.Data, &sample); err != nil {
		c.logger.Warn("dropping malformed telemetry message",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return
	}

	result := c.pipeline.Run(&sample)

	alert, err := c.alertSvc.Evaluate(ctx, result.Assessment)
	if err != nil {
		c.obs.RecordError(ctx, err, zap.String("vehicle_id", sample.VehicleID))
		return
	}

	verdict := ueba.Analyze(ueba.UserBehavior{}, ueba.ManagerBehavior{}, ueba.FlagsFromSample(&sample), ueba.WebAlerts{})
	c.verdicts.Put(sample.VehicleID, verdict)

	if m := c.obs.Metrics(); m != nil {
		m.SamplesScored.WithLabelValues(string(result.Assessment.Tier), sample.VehicleType).Inc()
		if alert != nil {
			m.AlertsFired.Inc()
		}
		m.UEBAScore.Observe(float64(verdict.Score))
		m.UEBAVerdicts.WithLabelValues(string(verdict.Status)).Inc()
	}

	if alert != nil {
		c.logger.Warn("critical risk alert raised",
			zap.String("vehicle_id", alert.VehicleID),
			zap.Float64("risk_score", alert.RiskScore),
			zap.String("predicted_failure", alert.PredictedFailure),
		)
	}
}

// Close drains the subscription so in-flight messages finish, then closes
// the connection.
func (c *Consumer) Close() error {
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			c.conn.Close()
			return err
		}
	}
	c.conn.Close()
	return nil
}
