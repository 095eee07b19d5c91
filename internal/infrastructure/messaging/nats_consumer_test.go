package messaging

import (
	"testing"
	"time"

	"crypto-alpha-tracker/internal/infrastructure/config"
	"crypto-alpha-tracker/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConsumer(t *testing.T) *NATSConsumer {
	t.Helper()
	log, err := logger.NewLogger("error")
	require.NoError(t, err)
	return NewNATSConsumer(&config.NATSConfig{MaxPendingMessages: 4}, []string{"solana"}, log)
}

func TestConsumerDeliversEvents(t *testing.T) {
	c := testConsumer(t)

	c.handleEvent("solana", c.logger, &nats.Msg{Data: []byte(`{"tx_id":"tx1","wallet":"w1"}`)})

	select {
	case ev := <-c.Events():
		assert.Equal(t, "tx1", ev.TxID)
		assert.Equal(t, "solana", ev.Chain, "chain is filled in from the subscription")
	case <-time.After(time.Second):
		t.Fatal("expected a delivered event")
	}
}

func TestConsumerIgnoresLateCallbacksAfterDisconnect(t *testing.T) {
	c := testConsumer(t)
	require.NoError(t, c.Disconnect())

	// A callback still in flight when the channels close must be a no-op.
	c.handleEvent("solana", c.logger, &nats.Msg{Data: []byte(`{"tx_id":"tx1","wallet":"w1"}`)})
	c.handleOutcome(&nats.Msg{Data: []byte(`{"wallet":"solana:w1","signal_id":"sig-1"}`)})

	_, ok := <-c.Events()
	assert.False(t, ok)
	_, ok = <-c.Outcomes()
	assert.False(t, ok)
}
