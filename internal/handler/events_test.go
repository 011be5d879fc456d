package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/queue"
	redisclient "github.com/openclaw/export-worker-go/internal/redis"
	"github.com/openclaw/export-worker-go/internal/sse"
)

type sseMessage struct {
	event string
	data  string
}

// readEvents streams parsed SSE messages until the body closes.
func readEvents(t *testing.T, resp *http.Response) <-chan sseMessage {
	t.Helper()
	out := make(chan sseMessage, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		var msg sseMessage
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				msg.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				msg.data = strings.TrimPrefix(line, "data: ")
			case line == "" && msg.event != "":
				out <- msg
				msg = sseMessage{}
			}
		}
	}()
	return out
}

func next(t *testing.T, events <-chan sseMessage) sseMessage {
	t.Helper()
	select {
	case msg, ok := <-events:
		require.True(t, ok, "stream closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return sseMessage{}
}

func TestEventsHandler_Stream(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redisclient.Open(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	broker := sse.NewBroker(client)
	t.Cleanup(broker.Close)

	q := queue.NewJobQueue(10)
	_, err = q.Enqueue(context.Background(), model.JobTypeExport, 42, nil)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/v1/owners/{ownerID}/events", NewEventsHandler(broker, q).ServeHTTP)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/owners/42/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := readEvents(t, resp)

	connected := next(t, events)
	assert.Equal(t, "connected", connected.event)
	assert.JSONEq(t, `{"ownerId":42}`, connected.data)

	snapshot := next(t, events)
	assert.Equal(t, sse.EventJobStatus, snapshot.event)
	var replayed model.JobEvent
	require.NoError(t, json.Unmarshal([]byte(snapshot.data), &replayed))
	assert.Equal(t, int64(1), replayed.JobID)
	assert.Equal(t, model.JobStatusPending, replayed.Status)

	require.NoError(t, broker.PublishJobEvent(context.Background(), model.JobEvent{
		JobID: 1, Type: model.JobTypeExport, OwnerID: 42, Status: model.JobStatusProcessing, At: time.Now(),
	}))
	require.NoError(t, broker.PublishJobEvent(context.Background(), model.JobEvent{
		JobID: 9, OwnerID: 43, Status: model.JobStatusProcessing, At: time.Now(),
	}))

	live := next(t, events)
	assert.Equal(t, sse.EventJobStatus, live.event)
	var update model.JobEvent
	require.NoError(t, json.Unmarshal([]byte(live.data), &update))
	assert.Equal(t, int64(1), update.JobID)
	assert.Equal(t, model.JobStatusProcessing, update.Status)

	cancel()
	assert.Eventually(t, func() bool { return broker.ClientCount(42) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsHandler_RejectsBadOwner(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/v1/owners/{ownerID}/events", NewEventsHandler(nil, nil).ServeHTTP)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/owners/-1/events", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	handler := &EventsHandler{}
	rec := httptest.NewRecorder()

	event := sse.Event{
		Type: sse.EventJobStatus,
		Data: json.RawMessage(`{"jobId":1}`),
	}

	require.NoError(t, handler.sendRawEvent(rec, rec, event))

	assert.Equal(t, "event: job_status\ndata: {\"jobId\":1}\n\n", rec.Body.String())
}
