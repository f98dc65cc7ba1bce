// Package events implements the topic-addressed broadcaster that fans task
// and service lifecycle events out to subscriber connections. Delivery is
// best-effort: a subscriber whose connection fails is dropped, and a slow
// subscriber loses events rather than blocking publishers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/foreman/internal/log"
	"github.com/mattjoyce/foreman/internal/protocol"
	"github.com/mattjoyce/foreman/internal/store"
)

// Topic conventions used by the core.
const (
	TopicAllTasks    = "tasks:all"
	TopicAllServices = "services:all"
)

// TaskTopic returns the topic for one task's events.
func TaskTopic(taskID string) string { return "task:" + taskID }

// ServiceTopic returns the topic for one service's events.
func ServiceTopic(serviceID string) string { return "service:" + serviceID }

// Conn is the transport a subscriber is reached through. WriteJSON must be
// safe to call from the broadcaster's per-subscriber writer goroutine.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Identity is the optional client identity a subscriber attaches after
// connecting.
type Identity struct {
	ClientID      string `json:"clientId"`
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	Platform      string `json:"platform"`
}

type subscriber struct {
	id       string
	conn     Conn
	identity *Identity
	lastSeen time.Time
	topics   map[string]struct{}
	out      chan any
	closed   bool
}

// Broadcaster owns the subscriber registry. All registry mutation happens
// through its methods under one mutex; per-subscriber writer goroutines only
// drain their own outbound channel.
type Broadcaster struct {
	store  store.Store
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*subscriber
}

// NewBroadcaster creates a Broadcaster persisting connection records through st.
func NewBroadcaster(st store.Store) *Broadcaster {
	return &Broadcaster{
		store:  st,
		logger: log.WithComponent("events"),
		subs:   make(map[string]*subscriber),
	}
}

// Register adds a new subscriber with an empty topic set and sends the
// welcome frame. Returns the assigned connection id.
func (b *Broadcaster) Register(conn Conn) string {
	id := uuid.NewString()
	sub := &subscriber{
		id:       id,
		conn:     conn,
		lastSeen: time.Now().UTC(),
		topics:   make(map[string]struct{}),
		out:      make(chan any, 64),
	}

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	go b.writeLoop(sub)

	b.send(sub, map[string]any{
		"type":      "welcome",
		"clientId":  id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})

	b.logger.Info("subscriber connected", "client_id", id)
	return id
}

// writeLoop drains one subscriber's outbound channel. A write failure drops
// the subscriber so one dead connection never affects the others.
func (b *Broadcaster) writeLoop(sub *subscriber) {
	for msg := range sub.out {
		if err := sub.conn.WriteJSON(msg); err != nil {
			b.logger.Warn("subscriber write failed, dropping", "client_id", sub.id, "error", err)
			b.Unregister(context.Background(), sub.id)
			// Keep draining so pending sends don't leak; the channel is
			// closed by Unregister.
			for range sub.out {
			}
			return
		}
	}
}

// send queues a frame without blocking. Frames to a full buffer are dropped.
// The closed check and the channel send happen under the registry mutex so a
// concurrent Unregister cannot close the channel mid-send.
func (b *Broadcaster) send(sub *subscriber, msg any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return false
	}
	select {
	case sub.out <- msg:
		return true
	default:
		b.logger.Warn("subscriber buffer full, dropping event", "client_id", sub.id)
		return false
	}
}

// Identify attaches a client identity to a subscriber and persists the
// connection record. Acknowledged with a registered frame.
func (b *Broadcaster) Identify(ctx context.Context, id string, ident Identity) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	if ident.ClientID == "" {
		ident.ClientID = id
	}
	sub.identity = &ident
	sub.lastSeen = time.Now().UTC()
	b.mu.Unlock()

	if err := b.store.UpsertConnection(ctx, &store.Connection{
		ID:            id,
		ClientID:      ident.ClientID,
		ClientName:    ident.ClientName,
		ClientVersion: ident.ClientVersion,
		Platform:      ident.Platform,
		Status:        "connected",
		LastSeen:      time.Now().UTC(),
	}); err != nil {
		b.logger.Error("failed to persist connection record", "client_id", id, "error", err)
	}

	b.send(sub, map[string]any{
		"type": "registered",
		"data": map[string]any{
			"clientId":   ident.ClientID,
			"serverTime": time.Now().UTC().Format(time.RFC3339),
		},
	})

	b.logger.Info("subscriber registered", "client_id", id,
		"client_name", ident.ClientName, "platform", ident.Platform)
}

// Subscribe adds topic to the subscriber's topic set and acknowledges it.
func (b *Broadcaster) Subscribe(id, topic string) {
	if topic == "" {
		return
	}
	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	sub.topics[topic] = struct{}{}
	sub.lastSeen = time.Now().UTC()
	b.mu.Unlock()

	b.logger.Debug("subscriber subscribed", "client_id", id, "topic", topic)
	b.send(sub, map[string]any{"type": "subscribed", "data": map[string]any{"topic": topic}})
}

// Unsubscribe removes topic from the subscriber's topic set and acknowledges it.
func (b *Broadcaster) Unsubscribe(id, topic string) {
	if topic == "" {
		return
	}
	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(sub.topics, topic)
	sub.lastSeen = time.Now().UTC()
	b.mu.Unlock()

	b.logger.Debug("subscriber unsubscribed", "client_id", id, "topic", topic)
	b.send(sub, map[string]any{"type": "unsubscribed", "data": map[string]any{"topic": topic}})
}

// Pong answers a subscriber-level ping frame.
func (b *Broadcaster) Pong(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		sub.lastSeen = time.Now().UTC()
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	b.send(sub, map[string]any{"type": "pong", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// Unregister removes a subscriber, revoking all topic memberships, and marks
// its connection record disconnected if it ever identified itself.
func (b *Broadcaster) Unregister(ctx context.Context, id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok || sub.closed {
		b.mu.Unlock()
		return
	}
	sub.closed = true
	delete(b.subs, id)
	close(sub.out)
	identity := sub.identity
	b.mu.Unlock()

	// Closing the transport unblocks the connection's read loop as well.
	_ = sub.conn.Close()

	if identity != nil {
		if err := b.store.UpsertConnection(ctx, &store.Connection{
			ID:            id,
			ClientID:      identity.ClientID,
			ClientName:    identity.ClientName,
			ClientVersion: identity.ClientVersion,
			Platform:      identity.Platform,
			Status:        "disconnected",
			LastSeen:      time.Now().UTC(),
		}); err != nil {
			b.logger.Error("failed to persist disconnect", "client_id", id, "error", err)
		}
	}

	b.logger.Info("subscriber disconnected", "client_id", id)
}

// Publish delivers payload to every subscriber of exactly topic. Returns the
// number of subscribers the event was queued for.
func (b *Broadcaster) Publish(topic string, payload any) int {
	data := json.RawMessage("{}")
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			data = raw
		} else {
			b.logger.Error("failed to marshal event payload", "topic", topic, "error", err)
		}
	}

	frame := map[string]any{
		"type":  "broadcast",
		"topic": topic,
		"data":  data,
	}

	b.mu.Lock()
	var targets []*subscriber
	for _, sub := range b.subs {
		if _, ok := sub.topics[topic]; ok {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	sent := 0
	for _, sub := range targets {
		if b.send(sub, frame) {
			sent++
		}
	}
	return sent
}

// SubscriberCount returns the number of live subscriber connections.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// TaskProgress publishes a task_progress event to the task's topic and tasks:all.
func (b *Broadcaster) TaskProgress(update protocol.ProgressUpdate) {
	msg := map[string]any{"type": "task_progress", "data": update}
	b.Publish(TaskTopic(update.TaskID), msg)
	b.Publish(TopicAllTasks, msg)
}

// TaskCompleted publishes a task_completed event to the task's topic and tasks:all.
func (b *Broadcaster) TaskCompleted(taskID string, result json.RawMessage) {
	msg := map[string]any{
		"type": "task_completed",
		"data": protocol.TaskCompleted{
			TaskID:    taskID,
			Result:    result,
			Timestamp: time.Now().UTC(),
		},
	}
	b.Publish(TaskTopic(taskID), msg)
	b.Publish(TopicAllTasks, msg)
}

// ServiceStatus publishes a service_status event to the service's topic and
// services:all. Status is one of installed, running, error, stopped, removed.
func (b *Broadcaster) ServiceStatus(serviceID, status string) {
	msg := map[string]any{
		"type": "service_status",
		"data": protocol.ServiceStatus{
			ServiceID: serviceID,
			Status:    status,
			Timestamp: time.Now().UTC(),
		},
	}
	b.Publish(ServiceTopic(serviceID), msg)
	b.Publish(TopicAllServices, msg)
}
