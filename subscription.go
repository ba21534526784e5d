package stomp

import (
	"sync"

	"github.com/bsiegfreid/iridium-stomp/frame"
)

// subscriptionChannelCapacity is the per-subscription receive endpoint
// bound (§5, §4.6): a full endpoint drops a delivery rather than blocking
// the manager.
const subscriptionChannelCapacity = 16

// deliverOutcome distinguishes why deliver did not hand over a frame, so
// routeMessage (conn.go) can prune a closed subscription without treating a
// merely-full one the same way.
type deliverOutcome int

const (
	delivered deliverOutcome = iota
	deliverDropped
	deliverClosed
)

// subscriptionRecord is the manager's private bookkeeping for one
// subscription (§3's SubscriptionRecord), persisted across reconnects so
// it can be replayed as a SUBSCRIBE frame.
//
// close() is called from an application goroutine (via Connection.Unsubscribe)
// while deliver() is called from the manager goroutine (via routeMessage).
// mu makes the closed-check and the send/close atomic with respect to each
// other, so a concurrent Unsubscribe can never close r.ch out from under a
// deliver already past its closed-check (§9: guard shared mutable state
// mutated from more than one goroutine under a single lock).
type subscriptionRecord struct {
	id          string
	destination string // wire destination (possibly a durable-queue rewrite)
	ackMode     AckMode
	headers     []frame.Header

	mu     sync.Mutex
	ch     chan *frame.Frame
	closed bool
}

func (r *subscriptionRecord) deliver(f *frame.Frame) deliverOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return deliverClosed
	}
	select {
	case r.ch <- f:
		return delivered
	default:
		return deliverDropped // full endpoint: drop, per §5
	}
}

func (r *subscriptionRecord) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.ch)
}

// subscriptionTable is the connection-wide registry of live subscriptions,
// indexed by id for direct lookup and walkable by destination for
// destination-only MESSAGE fan-out (§4.4).
type subscriptionTable struct {
	mu   sync.Mutex
	byID map[string]*subscriptionRecord
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{byID: make(map[string]*subscriptionRecord)}
}

func (t *subscriptionTable) add(r *subscriptionRecord) {
	t.mu.Lock()
	t.byID[r.id] = r
	t.mu.Unlock()
}

func (t *subscriptionTable) remove(id string) *subscriptionRecord {
	t.mu.Lock()
	r := t.byID[id]
	delete(t.byID, id)
	t.mu.Unlock()
	return r
}

func (t *subscriptionTable) get(id string) (*subscriptionRecord, bool) {
	t.mu.Lock()
	r, ok := t.byID[id]
	t.mu.Unlock()
	return r, ok
}

// byDestination returns every live subscription bound to destination, for
// the "no subscription id header" fan-out fallback in §4.4.
func (t *subscriptionTable) byDestination(destination string) []*subscriptionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*subscriptionRecord
	for _, r := range t.byID {
		if r.destination == destination {
			out = append(out, r)
		}
	}
	return out
}

// snapshot returns every live subscription, for resubscribe-on-reconnect
// (§4.3 step 6).
func (t *subscriptionTable) snapshot() []*subscriptionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*subscriptionRecord, 0, len(t.byID))
	for _, r := range t.byID {
		out = append(out, r)
	}
	return out
}

func (t *subscriptionTable) closeAll() {
	t.mu.Lock()
	records := make([]*subscriptionRecord, 0, len(t.byID))
	for _, r := range t.byID {
		records = append(records, r)
	}
	t.byID = make(map[string]*subscriptionRecord)
	t.mu.Unlock()
	for _, r := range records {
		r.close()
	}
}

// Subscription is the application-visible handle returned by Subscribe. It
// exposes a lazy sequence of inbound MESSAGE frames (via C) and
// acknowledgement operations that delegate back to the owning connection.
//
// A Subscription's receive sequence terminates when the subscription is
// explicitly ended or the connection shuts down; it never blocks routing
// inside the manager (§5, §4.6).
type Subscription struct {
	id          string
	destination string // caller-requested destination, even under durable-queue remap
	ackMode     AckMode
	conn        *Connection
	ch          <-chan *frame.Frame
}

// ID returns the locally-assigned subscription id sent on the wire.
func (s *Subscription) ID() string { return s.id }

// Destination returns the destination the caller originally requested.
func (s *Subscription) Destination() string { return s.destination }

// AckMode returns the acknowledgement policy negotiated at subscribe time.
func (s *Subscription) AckMode() AckMode { return s.ackMode }

// C is the lazy sequence of inbound MESSAGE frames for this subscription.
// It closes when the subscription is unsubscribed or the connection shuts
// down.
func (s *Subscription) C() <-chan *frame.Frame { return s.ch }

// Ack acknowledges messageID through the owning connection.
func (s *Subscription) Ack(messageID string) error {
	return s.conn.Ack(s.id, messageID)
}

// Nack negatively-acknowledges messageID through the owning connection.
func (s *Subscription) Nack(messageID string) error {
	return s.conn.Nack(s.id, messageID)
}

// Unsubscribe ends the subscription through the owning connection.
func (s *Subscription) Unsubscribe() error {
	return s.conn.Unsubscribe(s.id)
}
