package events

import (
	"sync"
	"time"
)

// EventType names a repmgrd event, matching the event_type values the
// catalog's events table records and the names event_notifications in
// config.Config filters against.
type EventType string

const (
	EventStandbyRegister             EventType = "standby_register"
	EventStandbyUnregister           EventType = "standby_unregister"
	EventStandbyClone                EventType = "standby_clone"
	EventStandbyFollow               EventType = "standby_follow"
	EventStandbyPromote              EventType = "standby_promote"
	EventPrimaryRegister             EventType = "primary_register"
	EventPrimaryUnregister           EventType = "primary_unregister"
	EventWitnessRegister             EventType = "witness_register"
	EventWitnessUnregister           EventType = "witness_unregister"
	EventNodeRejoin                  EventType = "node_rejoin"
	EventRepmgrdStart                EventType = "repmgrd_start"
	EventRepmgrdShutdown             EventType = "repmgrd_shutdown"
	EventRepmgrdFailoverPromote      EventType = "repmgrd_failover_promote"
	EventRepmgrdFailoverFollow       EventType = "repmgrd_failover_follow"
	EventRepmgrdPaused               EventType = "repmgrd_paused"
	EventRepmgrdUnpaused             EventType = "repmgrd_unpaused"
	EventChildNodeDisconnect         EventType = "child_node_disconnect"
	EventChildNodeReconnect          EventType = "child_node_reconnect"
	EventChildNodesDisconnectCommand EventType = "child_nodes_disconnect_command"
)

// Event is a single repmgrd event, mirroring the catalog's events
// table row: which node it happened on, what kind, whether it
// succeeded, and a free-form detail string.
type Event struct {
	NodeID     int32
	Type       EventType
	Timestamp  time.Time
	Successful bool
	Details    string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
