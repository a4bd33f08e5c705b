package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published by the workflow engines
const (
	EventStagesInstantiated = "stages_instantiated"
	EventStageStarted       = "stage_started"
	EventStageCompleted     = "stage_completed"
	EventStageImageAdded    = "stage_image_added"
	EventStageAdjusted      = "stage_adjusted"
	EventStageAssigned      = "stage_assigned"
	EventAddonSubmitted     = "addon_submitted"
	EventAddonApproved      = "addon_approved"
	EventAddonRejected      = "addon_rejected"
	EventServiceLineRemoved = "service_line_removed"
)

// Role-scoped topics. Booking-scoped topics come from BookingTopic.
const (
	TopicQueueGlobal  = "queue:global"
	TopicAdminPending = "queue:admin-pending"
)

// BookingTopic returns the topic for events scoped to a single booking
func BookingTopic(bookingID uint) string {
	return fmt.Sprintf("booking:%d", bookingID)
}

// Event is a lightweight change notification. Delivery is at-least-once and
// unordered; subscribers must re-read the affected entity rather than apply
// the event as a diff.
type Event struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Type       string    `json:"type"`
	BookingID  uint      `json:"booking_id,omitempty"`
	EntityID   uint      `json:"entity_id,omitempty"` // stage, request or line ID, depending on Type
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent builds an event with a fresh ID and timestamp
func NewEvent(topic, eventType string, bookingID, entityID uint) Event {
	return Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		Type:       eventType,
		BookingID:  bookingID,
		EntityID:   entityID,
		OccurredAt: time.Now(),
	}
}

// Broadcaster fans out workflow events to subscribers by topic
type Broadcaster interface {
	// Publish delivers an event to all current subscribers of the topic.
	// It never blocks on a slow subscriber.
	Publish(topic string, event Event)

	// Subscribe returns a channel of events for the topic and a cancel
	// function that must be called when the subscriber is done.
	Subscribe(topic string) (<-chan Event, func())
}

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls further behind than this loses events, which is safe because
// consumers re-fetch state on every event.
const subscriberBuffer = 16

type subscriber struct {
	ch chan Event
}

// ChannelBroadcaster is the in-process Broadcaster implementation
type ChannelBroadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscriber
	nextID uint64
}

// NewChannelBroadcaster constructs an empty broadcaster
func NewChannelBroadcaster() *ChannelBroadcaster {
	return &ChannelBroadcaster{
		subs: make(map[string]map[uint64]*subscriber),
	}
}

// Publish delivers the event to every subscriber of the topic
func (b *ChannelBroadcaster) Publish(topic string, event Event) {
	event.Topic = topic

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer full; drop rather than block the mutation.
		}
	}
}

// Subscribe registers a new subscriber for the topic
func (b *ChannelBroadcaster) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*subscriber)
	}

	id := b.nextID
	b.nextID++

	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.subs[topic][id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[topic][id]; ok {
			delete(b.subs[topic], id)
			close(s.ch)
		}
	}

	return sub.ch, cancel
}

// SubscriberCount returns the number of active subscribers for a topic
// (used by tests and the events endpoint's diagnostics)
func (b *ChannelBroadcaster) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

var broadcasterInstance Broadcaster

// InitBroadcaster initializes the global broadcaster instance
func InitBroadcaster(b Broadcaster) Broadcaster {
	broadcasterInstance = b
	return broadcasterInstance
}

// GetBroadcaster returns the initialized broadcaster instance
func GetBroadcaster() Broadcaster {
	return broadcasterInstance
}

// SetBroadcaster sets the broadcaster instance (primarily for testing)
func SetBroadcaster(b Broadcaster) {
	broadcasterInstance = b
}
