package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/export-worker-go/internal/model"
	redisclient "github.com/openclaw/export-worker-go/internal/redis"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redisclient.Open(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	broker := NewBroker(client)
	t.Cleanup(broker.Close)
	return broker
}

func receive(t *testing.T, client *Client) model.JobEvent {
	t.Helper()
	select {
	case event := <-client.Events:
		assert.Equal(t, EventJobStatus, event.Type)
		var job model.JobEvent
		require.NoError(t, json.Unmarshal(event.Data, &job))
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return model.JobEvent{}
}

func TestBroker_PublishJobEvent(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	owner := broker.Subscribe(42)
	other := broker.Subscribe(43)
	assert.Equal(t, 1, broker.ClientCount(42))
	assert.Equal(t, 2, broker.TotalClients())

	require.NoError(t, broker.PublishJobEvent(ctx, model.JobEvent{JobID: 7, OwnerID: 42, Status: model.JobStatusCompleted}))

	got := receive(t, owner)
	assert.Equal(t, int64(7), got.JobID)
	assert.Equal(t, model.JobStatusCompleted, got.Status)

	select {
	case <-other.Events:
		t.Fatal("event leaked to another owner")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_Forward(t *testing.T) {
	broker := newTestBroker(t)
	client := broker.Subscribe(5)

	events := make(chan model.JobEvent, 2)
	events <- model.JobEvent{JobID: 1, OwnerID: 5, Status: model.JobStatusPending}
	events <- model.JobEvent{JobID: 1, OwnerID: 5, Status: model.JobStatusProcessing}
	close(events)

	broker.Forward(context.Background(), events)

	assert.Equal(t, model.JobStatusPending, receive(t, client).Status)
	assert.Equal(t, model.JobStatusProcessing, receive(t, client).Status)
}

func TestBroker_Unsubscribe(t *testing.T) {
	broker := newTestBroker(t)

	first := broker.Subscribe(9)
	second := broker.Subscribe(9)
	assert.Equal(t, 2, broker.ClientCount(9))

	broker.Unsubscribe(first)
	assert.Equal(t, 1, broker.ClientCount(9))
	select {
	case <-first.Done:
	default:
		t.Fatal("Done not closed")
	}

	assert.NotPanics(t, func() { broker.Unsubscribe(first) })

	broker.Unsubscribe(second)
	assert.Equal(t, 0, broker.ClientCount(9))

	t.Run("resubscribing delivers each event once", func(t *testing.T) {
		client := broker.Subscribe(9)
		require.NoError(t, broker.PublishJobEvent(context.Background(), model.JobEvent{JobID: 3, OwnerID: 9}))

		assert.Equal(t, int64(3), receive(t, client).JobID)
		select {
		case <-client.Events:
			t.Fatal("duplicate event")
		case <-time.After(50 * time.Millisecond):
		}
	})
}
