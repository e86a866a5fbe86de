package kafka_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/cmsflow/approvals/pkg/channels/kafka"
	"github.com/cmsflow/approvals/pkg/eventbus"
	"github.com/cmsflow/approvals/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func TestCreateChannel_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Kafka container test in short mode")
	}

	ctx := context.Background()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_CREATE_TOPICS": "true",
	}))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pub, sub, err := kafka.CreateChannel(watermill.NopLogger{}, brokers, "approvals-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	var (
		mu       sync.Mutex
		received []*events.InstanceStarted
	)

	require.NoError(t, bus.Handle(events.InstanceStartedEvent, func(_ context.Context, event any) error {
		mu.Lock()
		defer mu.Unlock()

		received = append(received, event.(*events.InstanceStarted))

		return nil
	}))

	subCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)

	require.NoError(t, bus.Subscribe(subCtx))

	started := &events.InstanceStarted{
		BaseEvent:     events.NewBaseEvent(events.InstanceStartedEvent, "inst-1", "wf-1", "CONTENT", "42"),
		InitiatorID:   "author",
		CurrentNodeID: "editor",
	}

	require.NoError(t, bus.Publish(ctx, "inst-1", started))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 60*time.Second, 200*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, received, 1)
	assert.Equal(t, "inst-1", received[0].InstanceID)
	assert.Equal(t, "editor", received[0].CurrentNodeID)
}
