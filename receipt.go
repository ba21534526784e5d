package stomp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingReceipts tracks one-shot notifiers keyed by receipt id, generalizing
// the teacher's receipts type (client.go) to support timeouts and to hand
// out connection-unique ids via google/uuid instead of a hand-rolled
// crypto/rand UUID.
type pendingReceipts struct {
	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
	orders map[string]chan struct{}
}

func newPendingReceipts() *pendingReceipts {
	return &pendingReceipts{
		closed: make(chan struct{}),
		orders: make(map[string]chan struct{}),
	}
}

// register allocates a fresh receipt id and a notifier channel for it.
func (p *pendingReceipts) register() (string, chan struct{}) {
	id := uuid.NewString()
	ch := make(chan struct{})
	p.mu.Lock()
	p.orders[id] = ch
	p.mu.Unlock()
	return id, ch
}

// resolve fulfills the notifier for id, if one is registered. It is called
// by the manager's inbound routing when a RECEIPT frame arrives.
func (p *pendingReceipts) resolve(id string) {
	p.mu.Lock()
	ch, ok := p.orders[id]
	if ok {
		delete(p.orders, id)
	}
	p.mu.Unlock()
	if ok {
		close(ch)
	}
}

// unregister removes id's registration without resolving it, used after a
// timeout so a later RECEIPT for the same id is a no-op.
func (p *pendingReceipts) unregister(id string) {
	p.mu.Lock()
	delete(p.orders, id)
	p.mu.Unlock()
}

// closeAll resolves every waiter with "channel closed" by closing the
// shared closed channel; each waiter's select observes this exactly once.
func (p *pendingReceipts) closeAll() {
	p.once.Do(func() { close(p.closed) })
}

// await blocks until id resolves, the registry is closed, or timeout
// elapses (timeout <= 0 means wait forever). An id with no registration
// (already resolved, or never registered) returns immediately as success.
func (p *pendingReceipts) await(id string, timeout time.Duration) error {
	p.mu.Lock()
	ch, ok := p.orders[id]
	p.mu.Unlock()
	if !ok {
		return nil
	}

	if timeout <= 0 {
		select {
		case <-ch:
			return nil
		case <-p.closed:
			return ErrClosed
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-timer.C:
		p.unregister(id)
		return ErrReceiptTimeout
	}
}
