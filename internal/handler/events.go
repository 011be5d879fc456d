package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/sse"
)

// OwnerJobs lists the jobs replayed to a client when it connects.
type OwnerJobs interface {
	TasksOwnedBy(ownerID int64) []model.Job
}

type EventsHandler struct {
	broker    *sse.Broker
	jobs      OwnerJobs
	heartbeat time.Duration
}

func NewEventsHandler(broker *sse.Broker, jobs OwnerJobs) *EventsHandler {
	return &EventsHandler{
		broker:    broker,
		jobs:      jobs,
		heartbeat: sse.HeartbeatInterval,
	}
}

// GET /v1/owners/{ownerID}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(ownerID)
	defer h.broker.Unsubscribe(client)

	log.Info().Int64("ownerId", ownerID).Msg("sse connection established")

	ctx := r.Context()

	if err := h.sendEvent(w, flusher, "connected", map[string]any{"ownerId": ownerID}); err != nil {
		log.Debug().Err(err).Int64("ownerId", ownerID).Msg("failed to send connected event")
		return
	}

	if err := h.sendSnapshot(w, flusher, ownerID); err != nil {
		log.Error().Err(err).Int64("ownerId", ownerID).Msg("failed to send job snapshot")
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Int64("ownerId", ownerID).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Int64("ownerId", ownerID).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Int64("ownerId", ownerID).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

// sendSnapshot replays the owner's known jobs as one event each so a client
// that connects late sees the current state.
func (h *EventsHandler) sendSnapshot(w http.ResponseWriter, flusher http.Flusher, ownerID int64) error {
	if h.jobs == nil {
		return nil
	}
	for _, job := range h.jobs.TasksOwnedBy(ownerID) {
		at := job.CreatedAt
		if job.FinishedAt != nil {
			at = *job.FinishedAt
		} else if job.StartedAt != nil {
			at = *job.StartedAt
		}
		event := model.JobEvent{
			JobID:   job.ID,
			Type:    job.Type,
			OwnerID: job.OwnerID,
			Status:  job.Status,
			Reason:  job.FailureReason,
			At:      at,
		}
		if err := h.sendEvent(w, flusher, sse.EventJobStatus, event); err != nil {
			return err
		}
	}
	return nil
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
