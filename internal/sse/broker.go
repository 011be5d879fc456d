package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/export-worker-go/internal/model"
	redisclient "github.com/openclaw/export-worker-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	publishTimeout    = 5 * time.Second
)

// EventJobStatus is the SSE event type carrying a model.JobEvent.
const EventJobStatus = "job_status"

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	OwnerID int64
	Events  chan Event
	Done    chan struct{}
}

// Broker fans job events out to SSE clients through Redis pub/sub, so a
// client connected to any API replica sees the worker's events.
type Broker struct {
	redis   *redisclient.Client
	clients map[int64]map[*Client]bool // ownerID -> set of clients
	subs    map[int64]*subscription
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// subscription is the Redis listener shared by one owner's clients.
type subscription struct {
	ready  chan struct{}
	cancel context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[int64]map[*Client]bool),
		subs:    make(map[int64]*subscription),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(ownerID int64) *Client {
	client := &Client{
		OwnerID: ownerID,
		Events:  make(chan Event, 100),
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[ownerID] == nil {
		b.clients[ownerID] = make(map[*Client]bool)
		subCtx, cancel := context.WithCancel(b.ctx)
		sub := &subscription{ready: make(chan struct{}), cancel: cancel}
		b.subs[ownerID] = sub
		go b.subscribeToRedis(subCtx, ownerID, sub)
	}
	b.clients[ownerID][client] = true
	clientCount := len(b.clients[ownerID])
	sub := b.subs[ownerID]
	b.mu.Unlock()

	<-sub.ready

	log.Info().
		Int64("ownerId", ownerID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.OwnerID]; ok {
		if !clients[client] {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.OwnerID)
			if sub := b.subs[client.OwnerID]; sub != nil {
				sub.cancel()
				delete(b.subs, client.OwnerID)
			}
		}

		log.Info().
			Int64("ownerId", client.OwnerID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

// PublishJobEvent sends a job status change to the owner's channel.
func (b *Broker) PublishJobEvent(ctx context.Context, event model.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Event{Type: EventJobStatus, Data: data})
	if err != nil {
		return err
	}

	channel := redisclient.JobEventChannel(event.OwnerID)
	return b.redis.Publish(ctx, channel, payload).Err()
}

// Forward publishes every event from events until it is closed or ctx ends.
func (b *Broker) Forward(ctx context.Context, events <-chan model.JobEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := b.PublishJobEvent(pubCtx, event); err != nil {
				log.Warn().Err(err).Int64("jobId", event.JobID).Msg("failed to publish job event")
			}
			cancel()
		}
	}
}

// subscribeToRedis closes sub.ready once the subscription is confirmed, so
// events published after Subscribe returns are not lost.
func (b *Broker) subscribeToRedis(ctx context.Context, ownerID int64, sub *subscription) {
	channel := redisclient.JobEventChannel(ownerID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error().Err(err).Int64("ownerId", ownerID).Msg("redis pubsub subscribe failed")
	}
	close(sub.ready)

	log.Debug().
		Int64("ownerId", ownerID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(ownerID, sub, event)
		}
	}
}

// broadcast delivers event to the owner's clients unless sub was replaced.
func (b *Broker) broadcast(ownerID int64, sub *subscription, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.subs[ownerID] != sub {
		return
	}
	for client := range b.clients[ownerID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Int64("ownerId", ownerID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[int64]map[*Client]bool)
	b.subs = make(map[int64]*subscription)
}

func (b *Broker) ClientCount(ownerID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[ownerID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
