package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/infrastructure/config"
	"crypto-alpha-tracker/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes alerts on the outbound alert subject. It shares
// nothing with the consumer so a publish stall can never back-pressure
// ingestion.
type NATSPublisher struct {
	conn   *nats.Conn
	config *config.NATSConfig
	logger *logger.Logger
}

// NewNATSPublisher creates a new NATS alert publisher
func NewNATSPublisher(cfg *config.NATSConfig, logger *logger.Logger) *NATSPublisher {
	return &NATSPublisher{
		config: cfg,
		logger: logger.WithComponent("nats-publisher"),
	}
}

// Connect connects to the NATS server
func (p *NATSPublisher) Connect(ctx context.Context) error {
	if !p.config.Enabled {
		p.logger.Info("NATS is disabled, alerts will not be published")
		return nil
	}

	conn, err := nats.Connect(p.config.URL,
		nats.Name("alpha-tracker-publisher"),
		nats.Timeout(p.config.ConnectTimeout),
		nats.ReconnectWait(p.config.ReconnectDelay),
		nats.MaxReconnects(p.config.ReconnectAttempts),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p.conn = conn
	p.logger.Info("Alert publisher connected", zap.String("subject", p.config.AlertSubject()))
	return nil
}

// PublishAlert publishes one alert as JSON
func (p *NATSPublisher) PublishAlert(ctx context.Context, alert *entity.Alert) error {
	if p.conn == nil {
		return nil
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert %s: %w", alert.ID, err)
	}

	if err := p.conn.Publish(p.config.AlertSubject(), data); err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", alert.ID, err)
	}

	p.logger.Debug("Published alert",
		zap.String("alert_id", alert.ID),
		zap.String("kind", string(alert.Kind)),
		zap.String("token", alert.Token))
	return nil
}

// Disconnect closes the connection
func (p *NATSPublisher) Disconnect() error {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}
