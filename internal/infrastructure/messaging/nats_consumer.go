package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/infrastructure/config"
	"crypto-alpha-tracker/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// OutcomeMessage is the wire form of realized-outcome feedback published by
// downstream evaluators.
type OutcomeMessage struct {
	Wallet    string    `json:"wallet"`
	SignalID  string    `json:"signal_id"`
	At        time.Time `json:"at"`
	Favorable bool      `json:"favorable"`
}

// NATSConsumer subscribes to the per-chain raw-event subjects and the
// outcome-feedback subject, fanning messages into buffered channels. When a
// channel is full the message is dropped and counted; ingestion never blocks
// the NATS callback.
type NATSConsumer struct {
	conn      *nats.Conn
	subs      []*nats.Subscription
	config    *config.NATSConfig
	chains    []string
	logger    *logger.Logger
	eventChan chan *entity.RawEvent
	outChan   chan *OutcomeMessage
	isRunning bool

	// mu orders in-flight callback deliveries against Disconnect closing
	// the channels.
	mu     sync.RWMutex
	closed bool
}

// NewNATSConsumer creates a new NATS consumer for the given chains
func NewNATSConsumer(cfg *config.NATSConfig, chains []string, logger *logger.Logger) *NATSConsumer {
	return &NATSConsumer{
		config:    cfg,
		chains:    chains,
		logger:    logger.WithComponent("nats-consumer"),
		eventChan: make(chan *entity.RawEvent, cfg.MaxPendingMessages),
		outChan:   make(chan *OutcomeMessage, cfg.MaxPendingMessages),
	}
}

// Connect connects to the NATS server and sets up all subscriptions
func (n *NATSConsumer) Connect(ctx context.Context) error {
	if !n.config.Enabled {
		n.logger.Info("NATS is disabled, skipping connection")
		return nil
	}

	n.logger.Info("Connecting to NATS server", zap.String("url", n.config.URL))

	opts := []nats.Option{
		nats.Name("alpha-tracker"),
		nats.Timeout(n.config.ConnectTimeout),
		nats.ReconnectWait(n.config.ReconnectDelay),
		nats.MaxReconnects(n.config.ReconnectAttempts),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			n.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.logger.Error("Failed to connect to NATS", zap.Error(err))
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.conn = conn

	for _, chain := range n.chains {
		if err := n.subscribeEvents(chain); err != nil {
			conn.Close()
			return err
		}
	}
	if err := n.subscribeOutcomes(); err != nil {
		conn.Close()
		return err
	}

	n.isRunning = true
	n.logger.Info("Successfully connected to NATS",
		zap.Strings("chains", n.chains),
		zap.String("queue_group", n.config.ConsumerGroup))
	return nil
}

// subscribeEvents sets up the queue subscription for one chain's raw events
func (n *NATSConsumer) subscribeEvents(chain string) error {
	subject := n.config.EventSubject(chain)
	log := n.logger.WithChain(chain)

	sub, err := n.conn.QueueSubscribe(subject, n.config.ConsumerGroup, func(msg *nats.Msg) {
		n.handleEvent(chain, log, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	n.subs = append(n.subs, sub)
	log.Info("Subscribed to raw events", zap.String("subject", subject))
	return nil
}

// subscribeOutcomes sets up the subscription for outcome feedback
func (n *NATSConsumer) subscribeOutcomes() error {
	subject := n.config.OutcomeSubject()

	sub, err := n.conn.QueueSubscribe(subject, n.config.ConsumerGroup, func(msg *nats.Msg) {
		n.handleOutcome(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	n.subs = append(n.subs, sub)
	n.logger.Info("Subscribed to outcome feedback", zap.String("subject", subject))
	return nil
}

// handleEvent handles one incoming raw-event message
func (n *NATSConsumer) handleEvent(chain string, log *logger.Logger, msg *nats.Msg) {
	var ev entity.RawEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Error("Failed to unmarshal raw event", zap.Error(err))
		return
	}
	if ev.Chain == "" {
		ev.Chain = chain
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.eventChan <- &ev:
	default:
		log.Warn("Event channel is full, dropping message",
			zap.String("tx_id", ev.TxID),
			zap.String("wallet", ev.Wallet))
	}
}

// handleOutcome handles one incoming outcome-feedback message
func (n *NATSConsumer) handleOutcome(msg *nats.Msg) {
	var out OutcomeMessage
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		n.logger.Error("Failed to unmarshal outcome", zap.Error(err))
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.outChan <- &out:
	default:
		n.logger.Warn("Outcome channel is full, dropping message",
			zap.String("signal_id", out.SignalID))
	}
}

// Disconnect drains subscriptions and closes the connection
func (n *NATSConsumer) Disconnect() error {
	n.isRunning = false

	for _, sub := range n.subs {
		sub.Unsubscribe()
	}
	n.subs = nil
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}

	// Unsubscribe does not wait for in-flight callbacks; their deliveries
	// hold the read lock, so closing under the write lock cannot race them.
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.eventChan)
		close(n.outChan)
	}
	n.mu.Unlock()
	n.logger.Info("Disconnected from NATS")
	return nil
}

// IsConnected checks if connected to NATS
func (n *NATSConsumer) IsConnected() bool {
	return n.isRunning && n.conn != nil && n.conn.IsConnected()
}

// Events returns the raw-event channel
func (n *NATSConsumer) Events() <-chan *entity.RawEvent {
	return n.eventChan
}

// Outcomes returns the outcome-feedback channel
func (n *NATSConsumer) Outcomes() <-chan *OutcomeMessage {
	return n.outChan
}
