package stomp

import (
	"sync"

	"github.com/bsiegfreid/iridium-stomp/frame"
)

// pendingDelivery pairs a message-id with the frame captured for it, kept
// FIFO within its subscription so cumulative acks can walk the prefix.
type pendingDelivery struct {
	messageID string
	frame     *frame.Frame
}

// pendingDeliveries is the connection-wide map of subscription id to its
// FIFO queue of deliveries awaiting ack, per §3's PendingDelivery entity.
// Only subscriptions in a non-auto ack mode accumulate entries here.
type pendingDeliveries struct {
	mu    sync.Mutex
	bySub map[string][]pendingDelivery
}

func newPendingDeliveries() *pendingDeliveries {
	return &pendingDeliveries{bySub: make(map[string][]pendingDelivery)}
}

func (p *pendingDeliveries) append(subID, messageID string, f *frame.Frame) {
	p.mu.Lock()
	p.bySub[subID] = append(p.bySub[subID], pendingDelivery{messageID: messageID, frame: f})
	p.mu.Unlock()
}

// clear empties the entire map, as happens on every (re)connect: messages
// outstanding before a disconnect are considered lost and left to the
// broker to redeliver.
func (p *pendingDeliveries) clear() {
	p.mu.Lock()
	p.bySub = make(map[string][]pendingDelivery)
	p.mu.Unlock()
}

// resolve removes delivery records for subID according to mode: cumulative
// removal of everything up to and including messageID for AckClient, or
// removal of only the matching entry for AckClientIndividual. It reports
// whether a matching entry was found; the caller sends ACK/NACK to the
// broker regardless, per §4.6 ("the server is authoritative").
func (p *pendingDeliveries) resolve(subID, messageID string, mode AckMode) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	queue, ok := p.bySub[subID]
	if !ok {
		return false
	}
	pos := -1
	for i, d := range queue {
		if d.messageID == messageID {
			pos = i
			break
		}
	}
	if pos == -1 {
		return false
	}

	switch mode {
	case AckClientIndividual:
		queue = append(queue[:pos], queue[pos+1:]...)
	default: // AckClient and any other non-auto mode: cumulative
		queue = queue[pos+1:]
	}

	if len(queue) == 0 {
		delete(p.bySub, subID)
	} else {
		p.bySub[subID] = queue
	}
	return true
}

// forget drops subID's queue entirely, used on unsubscribe.
func (p *pendingDeliveries) forget(subID string) {
	p.mu.Lock()
	delete(p.bySub, subID)
	p.mu.Unlock()
}
