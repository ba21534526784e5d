package stomp

import "github.com/pkg/errors"

// ErrTxDone is returned by Commit on a transaction that has already been
// committed or aborted, mirroring the teacher's tx.go.
var ErrTxDone = errors.New("stomp: transaction has already been committed or aborted")

// Tx is a convenience wrapper around a connection's Begin/Commit/Abort
// operations. The manager itself does not track transaction state (§4.8);
// Tx only remembers the id and whether it has finished. Frames sent or
// acked inside the transaction still need a "transaction" header set by the
// caller.
type Tx struct {
	id   string
	conn *Connection
	done bool
}

// Begin starts a new transaction on conn.
func Begin(conn *Connection, id string) (*Tx, error) {
	if err := conn.Begin(id); err != nil {
		return nil, err
	}
	return &Tx{id: id, conn: conn}, nil
}

// ID returns the transaction id.
func (t *Tx) ID() string { return t.id }

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return t.conn.Commit(t.id)
}

// Abort aborts the transaction. Unlike Commit, Abort after a prior Commit
// or Abort is a harmless no-op, so it is safe to call from a defer.
func (t *Tx) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.conn.Abort(t.id)
}
