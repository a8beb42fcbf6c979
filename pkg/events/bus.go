// Package events distributes session lifecycle events to observers so the
// presentation layer can mirror controller state reactively.
package events

import (
	"sync"
	"time"

	"github.com/embedmeet/embedmeet/pkg/log"
)

// Event types published by the session controller.
const (
	TypeStateChanged = "state_changed"
	TypeParticipants = "participants"
	TypeError        = "error"
)

// Event is a single session lifecycle notification.
type Event struct {
	Room         string    `json:"room"`
	Type         string    `json:"type"`
	State        string    `json:"state"`
	Participants int       `json:"participants"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Subscriber receives events for one room (or all rooms when the filter is
// empty) on a buffered channel.
type Subscriber struct {
	ID           string
	Room         string // filter by room slug, empty for all rooms
	Channel      chan Event
	LastActivity time.Time

	mutex     sync.RWMutex
	connected bool
}

// NewSubscriber creates a new event subscriber.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	return &Subscriber{
		ID:           id,
		Channel:      make(chan Event, bufferSize),
		LastActivity: time.Now(),
		connected:    true,
	}
}

// SetRoomFilter sets the room filter.
func (s *Subscriber) SetRoomFilter(room string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Room = room
}

// ShouldReceive checks if the subscriber wants this event.
func (s *Subscriber) ShouldReceive(ev Event) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.connected {
		return false
	}
	if s.Room != "" && s.Room != ev.Room {
		return false
	}
	return true
}

// Send delivers an event to the subscriber (non-blocking).
func (s *Subscriber) Send(ev Event) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.connected {
		return false
	}

	select {
	case s.Channel <- ev:
		s.LastActivity = time.Now()
		return true
	default:
		// Channel is full, drop the event
		log.Warnf("Dropping event for subscriber %s (channel full)", s.ID)
		return false
	}
}

// Close closes the subscriber.
func (s *Subscriber) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.connected {
		s.connected = false
		close(s.Channel)
	}
}

// IsConnected returns whether the subscriber is connected.
func (s *Subscriber) IsConnected() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.connected
}

// Bus fans session events out to subscribers.
type Bus struct {
	subscribers map[string]*Subscriber
	mutex       sync.RWMutex
	stats       BusStats
}

// BusStats holds statistics for the event bus.
type BusStats struct {
	TotalEvents       uint64
	DroppedEvents     uint64
	ActiveSubscribers int
	LastEventTime     time.Time
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe adds a new subscriber to the bus.
func (b *Bus) Subscribe(subscriber *Subscriber) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.subscribers[subscriber.ID] = subscriber
	b.stats.ActiveSubscribers = len(b.subscribers)

	log.Infof("Added event subscriber: %s (total: %d)", subscriber.ID, b.stats.ActiveSubscribers)
}

// Unsubscribe removes a subscriber from the bus.
func (b *Bus) Unsubscribe(subscriberID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if subscriber, exists := b.subscribers[subscriberID]; exists {
		subscriber.Close()
		delete(b.subscribers, subscriberID)
		b.stats.ActiveSubscribers = len(b.subscribers)

		log.Infof("Removed event subscriber: %s (total: %d)", subscriberID, b.stats.ActiveSubscribers)
	}
}

// Publish delivers an event to all matching subscribers. Events with a zero
// timestamp are stamped on the way in.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mutex.RLock()
	subscribers := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.ShouldReceive(ev) {
			subscribers = append(subscribers, sub)
		}
	}
	b.mutex.RUnlock()

	var dropped uint64
	for _, subscriber := range subscribers {
		if !subscriber.IsConnected() {
			continue
		}
		if !subscriber.Send(ev) {
			dropped++
		}
	}

	b.mutex.Lock()
	b.stats.TotalEvents++
	b.stats.LastEventTime = ev.Timestamp
	b.stats.DroppedEvents += dropped
	b.mutex.Unlock()
}

// GetStats returns bus statistics.
func (b *Bus) GetStats() BusStats {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	stats := b.stats
	stats.ActiveSubscribers = len(b.subscribers)
	return stats
}

// GetSubscriberCount returns the number of active subscribers.
func (b *Bus) GetSubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}

// CleanupInactiveSubscribers removes subscribers that have gone quiet.
func (b *Bus) CleanupInactiveSubscribers(timeout time.Duration) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	now := time.Now()
	removed := 0

	for id, subscriber := range b.subscribers {
		if !subscriber.IsConnected() || now.Sub(subscriber.LastActivity) > timeout {
			subscriber.Close()
			delete(b.subscribers, id)
			removed++
			log.Infof("Cleaned up inactive subscriber: %s", id)
		}
	}

	if removed > 0 {
		b.stats.ActiveSubscribers = len(b.subscribers)
	}

	return removed
}

// Shutdown closes all subscribers and shuts down the bus.
func (b *Bus) Shutdown() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	log.Info("Shutting down event bus")

	for _, subscriber := range b.subscribers {
		subscriber.Close()
	}

	b.subscribers = make(map[string]*Subscriber)
	b.stats.ActiveSubscribers = 0
}
