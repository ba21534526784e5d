package stomp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingReceiptsResolveUnblocksAwait(t *testing.T) {
	p := newPendingReceipts()
	id, _ := p.register()

	done := make(chan error, 1)
	go func() { done <- p.await(id, time.Second) }()

	p.resolve(id)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("await did not unblock after resolve")
	}
}

func TestPendingReceiptsAwaitTimesOut(t *testing.T) {
	p := newPendingReceipts()
	id, _ := p.register()

	err := p.await(id, 20*time.Millisecond)
	assert.Equal(t, ErrReceiptTimeout, err)

	// A late resolve for a timed-out id must be a harmless no-op.
	p.resolve(id)
}

func TestPendingReceiptsAwaitUnknownIDSucceedsImmediately(t *testing.T) {
	p := newPendingReceipts()
	err := p.await("never-registered", time.Second)
	assert.NoError(t, err)
}

func TestPendingReceiptsCloseAllUnblocksEveryWaiter(t *testing.T) {
	p := newPendingReceipts()
	idA, _ := p.register()
	idB, _ := p.register()

	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { doneA <- p.await(idA, 0) }()
	go func() { doneB <- p.await(idB, 0) }()

	// Give the goroutines a moment to register their select.
	time.Sleep(10 * time.Millisecond)
	p.closeAll()

	for _, ch := range []chan error{doneA, doneB} {
		select {
		case err := <-ch:
			assert.Equal(t, ErrClosed, err)
		case <-time.After(time.Second):
			t.Fatal("closeAll did not unblock a waiter")
		}
	}
}
