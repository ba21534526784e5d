package stomp

import (
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bsiegfreid/iridium-stomp/frame"
)

const (
	outboundChannelCapacity = 32
	inboundChannelCapacity  = 32
)

// InboundEvent is one item handed back by NextInbound: either a frame the
// manager had nowhere else to route, or an ERROR frame received after the
// handshake.
type InboundEvent struct {
	Frame *frame.Frame
	Err   *ServerError
}

// readResult is one decode off the wire, relayed from the per-generation
// reader goroutine to whichever loop (handshake or steady-state) is
// currently consuming it.
type readResult struct {
	item frame.Item
	err  error
}

// Connection is a STOMP connection manager: a single goroutine that owns
// the transport for one broker connection and multiplexes application
// sends, subscription delivery, heartbeats, and reconnects across it.
//
// A Connection survives transport failure by reconnecting with exponential
// backoff, replaying its subscription table, and discarding unacknowledged
// delivery state on every reconnect (§4.3, §4.7).
type Connection struct {
	address  string
	login    string
	passcode string
	clientHB HeartbeatSpec
	opts     *ConnectOptions
	logger   *logrus.Logger

	outbound chan frame.Item
	inbound  chan InboundEvent
	inboundMu sync.Mutex

	subs     *subscriptionTable
	pending  *pendingDeliveries
	receipts *pendingReceipts

	shutdown     chan struct{}
	shutdownOnce sync.Once
	closed       int32 // atomic

	// conn, enc, and reader belong to the current connection generation.
	// They are only touched by startup (before publishing) and by the
	// manager goroutine inside steadyState; no other goroutine reads them.
	conn     net.Conn
	enc      *frame.Encoder
	reader   <-chan readResult
	schedule heartbeatSchedule

	subIDSeq uint64 // atomic
}

// Connect opens a STOMP connection to address, performing the CONNECT
// handshake synchronously. On success, a background goroutine takes over
// steady-state operation and automatic reconnection.
func Connect(address, login, passcode string, hb HeartbeatSpec) (*Connection, error) {
	return ConnectWithOptions(address, login, passcode, hb, nil)
}

// ConnectWithOptions is Connect with additional, optional configuration.
func ConnectWithOptions(address, login, passcode string, hb HeartbeatSpec, opts *ConnectOptions) (*Connection, error) {
	o := opts.withDefaults()
	c := &Connection{
		address:  address,
		login:    login,
		passcode: passcode,
		clientHB: hb,
		opts:     o,
		logger:   o.Logger,
		outbound: make(chan frame.Item, outboundChannelCapacity),
		inbound:  make(chan InboundEvent, inboundChannelCapacity),
		subs:     newSubscriptionTable(),
		pending:  newPendingDeliveries(),
		receipts: newPendingReceipts(),
		shutdown: make(chan struct{}),
	}

	if err := c.startup(); err != nil {
		return nil, err
	}
	go c.manage()
	return c, nil
}

func (c *Connection) isShutdown() bool {
	return atomic.LoadInt32(&c.closed) != 0
}

// startup performs one full connect attempt (§4.3 steps 1-7): dial, send
// CONNECT, await CONNECTED or ERROR, negotiate heartbeats, clear pending
// delivery state, and replay the subscription table. On success it installs
// the new transport generation; on failure the caller decides whether to
// retry (TransportError) or give up (ServerRejectedError).
func (c *Connection) startup() error {
	conn, err := dial(c.address, c.opts)
	if err != nil {
		return err
	}

	enc := frame.NewEncoder(conn)

	connectFrame := frame.New(frame.CmdConnect).
		Append(frame.HeaderAcceptVersion, c.opts.AcceptVersion).
		Append(frame.HeaderHost, c.opts.HostVHost)
	if c.login != "" {
		connectFrame.Append(frame.HeaderLogin, c.login)
	}
	if c.passcode != "" {
		connectFrame.Append(frame.HeaderPasscode, c.passcode)
	}
	connectFrame.Append(frame.HeaderHeartBeat, c.clientHB.String())
	if c.opts.ClientID != "" {
		connectFrame.Append(frame.HeaderClientID, c.opts.ClientID)
	}
	for _, h := range c.opts.ExtraHeaders {
		if _, reserved := reservedConnectHeaders[strings.ToLower(h.Name)]; reserved {
			continue
		}
		connectFrame.Append(h.Name, h.Value)
	}

	if err := enc.Write(frame.FrameItem(connectFrame)); err != nil {
		conn.Close()
		return newTransportError("connect write", err)
	}

	reader := startReader(conn)

	var connected *frame.Frame
	for connected == nil {
		res, ok := <-reader
		if !ok {
			conn.Close()
			return newTransportError("connect read", io.ErrUnexpectedEOF)
		}
		if res.err != nil {
			conn.Close()
			return newTransportError("connect read", res.err)
		}
		if res.item.IsHeartbeat() {
			continue
		}
		f := res.item.Frame
		switch f.Command {
		case frame.CmdConnected:
			connected = f
		case frame.CmdError:
			conn.Close()
			return &ServerRejectedError{ServerError: newServerError(f)}
		}
		// Any other frame arriving before CONNECTED is ignored; a
		// compliant broker does not send one.
	}

	serverHB := HeartbeatSpec{}
	if hbHeader, ok := connected.GetCI(frame.HeaderHeartBeat); ok {
		if parsed, perr := ParseHeartbeatSpec(hbHeader); perr == nil {
			serverHB = parsed
		}
	}
	schedule := negotiateHeartbeats(c.clientHB, serverHB)

	c.pending.clear()

	for _, r := range c.subs.snapshot() {
		sf := frame.New(frame.CmdSubscribe).
			Append(frame.HeaderID, r.id).
			Append(frame.HeaderDestination, r.destination).
			Append(frame.HeaderAck, string(r.ackMode))
		for _, h := range r.headers {
			sf.Append(h.Key, h.Value)
		}
		if err := enc.Write(frame.FrameItem(sf)); err != nil {
			conn.Close()
			return newTransportError("resubscribe", err)
		}
	}

	c.conn = conn
	c.enc = enc
	c.reader = reader
	c.schedule = schedule
	return nil
}

// manage runs the steady-state loop and reconnect arm for the lifetime of
// the connection. The first startup already succeeded by the time this is
// started (ConnectWithOptions called it synchronously).
func (c *Connection) manage() {
	// manage, and only manage, sends to c.inbound (directly here via fatal,
	// and transitively through steadyState -> route -> pushInbound), so it
	// is the one goroutine that can safely close it once it is done.
	defer close(c.inbound)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // retry forever; only Close or a rejection stops us
	bo.RandomizationFactor = 0 // deterministic start-1s/double/cap-30s per §4.3

	for {
		c.steadyState()
		if c.isShutdown() {
			return
		}

		for {
			d := bo.NextBackOff()
			select {
			case <-time.After(d):
			case <-c.shutdown:
				return
			}

			if err := c.startup(); err != nil {
				if rejected, ok := err.(*ServerRejectedError); ok {
					c.logger.WithError(rejected).Error("stomp: connect rejected, giving up")
					c.fatal(rejected)
					return
				}
				c.logger.WithError(err).Warn("stomp: reconnect attempt failed")
				continue
			}
			bo.Reset()
			break
		}
	}
}

// fatal delivers a terminal error to NextInbound callers and shuts the
// connection down without attempting any further reconnect.
func (c *Connection) fatal(err *ServerRejectedError) {
	select {
	case c.inbound <- InboundEvent{Err: err.ServerError}:
	default:
	}
	c.shutdownLocal()
}

// shutdownLocal marks the connection closed and releases everything that
// waits on it, without touching the network (steadyState closes the
// transport itself once it observes the shutdown signal). It does not
// close c.inbound: shutdownLocal can run on an application goroutine (via
// Close) while the manager goroutine may still be inside pushInbound, so
// closing the channel here would race its send. Only manage, the sole
// sender, closes c.inbound, and only after it has permanently stopped.
func (c *Connection) shutdownLocal() {
	c.shutdownOnce.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		close(c.shutdown)
		c.receipts.closeAll()
		c.subs.closeAll()
	})
}

// startReader spawns the goroutine that decodes items off conn until it
// errs, relaying each to ch. The channel's small buffer backpressures reads
// until the manager consumes the previous item, without ever dropping
// bytes; it holds 2 so the reader can still deliver a final error after one
// unconsumed data item without its terminal send blocking forever past the
// manager giving up on this generation's reader.
func startReader(conn net.Conn) <-chan readResult {
	ch := make(chan readResult, 2)
	go func() {
		defer close(ch)
		dec := frame.NewDecoder()
		for {
			item, err := dec.ReadFrom(conn)
			if err != nil {
				ch <- readResult{err: err}
				return
			}
			ch <- readResult{item: item}
		}
	}()
	return ch
}

// steadyState runs the manager's select loop (§4.3 step 7, §4.6) until the
// transport fails, the watchdog trips, or the connection is closed.
func (c *Connection) steadyState() {
	conn := c.conn
	enc := c.enc
	reader := c.reader
	schedule := c.schedule
	defer conn.Close()

	var sendTickC, watchdogTickC <-chan time.Time
	if schedule.outgoing > 0 {
		t := time.NewTicker(schedule.outgoing)
		defer t.Stop()
		sendTickC = t.C
	}
	if wi := schedule.watchdogInterval(); wi > 0 {
		t := time.NewTicker(wi)
		defer t.Stop()
		watchdogTickC = t.C
	}

	for {
		select {
		case <-c.shutdown:
			return

		case item, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := enc.Write(item); err != nil {
				c.logger.WithError(err).Warn("stomp: write failed")
				return
			}
			schedule.markSent(time.Now())

		case res, ok := <-reader:
			if !ok {
				return
			}
			if res.err != nil {
				c.logger.WithError(res.err).Warn("stomp: read failed")
				return
			}
			schedule.markReceived(time.Now())
			if res.item.IsHeartbeat() {
				continue
			}
			c.route(res.item.Frame)

		case <-sendTickC:
			if schedule.dueToSend(time.Now()) {
				if err := enc.Write(frame.HeartbeatItem()); err != nil {
					c.logger.WithError(err).Warn("stomp: heartbeat write failed")
					return
				}
				schedule.markSent(time.Now())
				if c.opts.HeartbeatNotify != nil {
					select {
					case c.opts.HeartbeatNotify <- struct{}{}:
					default:
					}
				}
			}

		case <-watchdogTickC:
			if schedule.watchdogTripped(time.Now()) {
				c.logger.Warn("stomp: heartbeat watchdog tripped, reconnecting")
				return
			}
		}
	}
}

// route dispatches one decoded frame per §4.4: MESSAGE to matching
// subscriptions (with pending-delivery bookkeeping for non-auto ack modes),
// RECEIPT to the matching waiter, ERROR and anything else to the generic
// inbound channel.
func (c *Connection) route(f *frame.Frame) {
	switch f.Command {
	case frame.CmdMessage:
		c.routeMessage(f)
	case frame.CmdReceipt:
		if rid, ok := f.GetCI(frame.HeaderReceiptID); ok {
			c.receipts.resolve(rid)
		}
	case frame.CmdError:
		c.pushInbound(InboundEvent{Err: newServerError(f)})
	default:
		c.pushInbound(InboundEvent{Frame: f})
	}
}

func (c *Connection) routeMessage(f *frame.Frame) {
	dest, _ := f.GetCI(frame.HeaderDestination)
	msgID, hasMsgID := f.GetCI(frame.HeaderMessageID)

	var targets []*subscriptionRecord
	if subID, ok := f.GetCI(frame.HeaderSubscription); ok {
		if r, ok := c.subs.get(subID); ok {
			targets = []*subscriptionRecord{r}
		}
	} else {
		targets = c.subs.byDestination(dest)
	}

	if hasMsgID {
		for _, r := range targets {
			if r.ackMode != AckAuto {
				c.pending.append(r.id, msgID, f.Clone())
			}
		}
	}

	for _, r := range targets {
		if r.deliver(f.Clone()) == deliverClosed {
			c.subs.remove(r.id)
			c.pending.forget(r.id)
		}
	}
}

// pushInbound relays evt to the generic inbound channel, never blocking
// past shutdown.
func (c *Connection) pushInbound(evt InboundEvent) {
	select {
	case c.inbound <- evt:
	case <-c.shutdown:
	}
}

// enqueue hands item to the outbound channel, suspending the caller if it
// is full (§5), and returning ErrClosed if the connection has shut down.
func (c *Connection) enqueue(item frame.Item) error {
	select {
	case c.outbound <- item:
		return nil
	case <-c.shutdown:
		return ErrClosed
	}
}

// Send transmits f without requesting a receipt.
func (c *Connection) Send(f *frame.Frame) error {
	return c.enqueue(frame.FrameItem(f))
}

// SendWithReceipt attaches a fresh receipt id to f, sends it, and returns
// the id for a later AwaitReceipt call.
func (c *Connection) SendWithReceipt(f *frame.Frame) (string, error) {
	id, _ := c.receipts.register()
	f.WithReceipt(id)
	if err := c.enqueue(frame.FrameItem(f)); err != nil {
		c.receipts.unregister(id)
		return "", err
	}
	return id, nil
}

// AwaitReceipt blocks until the broker's RECEIPT frame for id arrives, the
// connection closes, or timeout elapses (timeout <= 0 waits forever).
func (c *Connection) AwaitReceipt(id string, timeout time.Duration) error {
	return c.receipts.await(id, timeout)
}

// SendConfirmed is SendWithReceipt immediately followed by AwaitReceipt.
func (c *Connection) SendConfirmed(f *frame.Frame, timeout time.Duration) error {
	id, err := c.SendWithReceipt(f)
	if err != nil {
		return err
	}
	return c.AwaitReceipt(id, timeout)
}

func (c *Connection) nextSubID() string {
	n := atomic.AddUint64(&c.subIDSeq, 1)
	return "sub-" + strconv.FormatUint(n, 10) + "-" + uuid.NewString()[:8]
}

// Subscribe subscribes to destination with AckAuto.
func (c *Connection) Subscribe(destination string) (*Subscription, error) {
	return c.SubscribeWithHeaders(destination, AckAuto, nil)
}

// SubscribeWithHeaders subscribes to destination with the given ack mode
// and extra SUBSCRIBE headers.
func (c *Connection) SubscribeWithHeaders(destination string, ackMode AckMode, headers []frameHeader) (*Subscription, error) {
	return c.SubscribeWithOptions(destination, ackMode, SubscribeOptions{Headers: headers})
}

// SubscribeWithOptions is the full form: it additionally supports a
// durable-queue destination rewrite that is transparent to the caller's
// view of Destination().
func (c *Connection) SubscribeWithOptions(destination string, ackMode AckMode, opts SubscribeOptions) (*Subscription, error) {
	if c.isShutdown() {
		return nil, ErrClosed
	}

	wireDest := destination
	if opts.DurableQueue != "" {
		wireDest = opts.DurableQueue
	}

	id := c.nextSubID()
	hdrs := make([]frame.Header, 0, len(opts.Headers))
	for _, h := range opts.Headers {
		hdrs = append(hdrs, frame.Header{Key: h.Name, Value: h.Value})
	}

	record := &subscriptionRecord{
		id:          id,
		destination: wireDest,
		ackMode:     ackMode,
		headers:     hdrs,
		ch:          make(chan *frame.Frame, subscriptionChannelCapacity),
	}
	c.subs.add(record)

	sf := frame.New(frame.CmdSubscribe).
		Append(frame.HeaderID, id).
		Append(frame.HeaderDestination, wireDest).
		Append(frame.HeaderAck, string(ackMode))
	for _, h := range hdrs {
		sf.Append(h.Key, h.Value)
	}
	if err := c.enqueue(frame.FrameItem(sf)); err != nil {
		c.subs.remove(id)
		return nil, err
	}

	return &Subscription{
		id:          id,
		destination: destination,
		ackMode:     ackMode,
		conn:        c,
		ch:          record.ch,
	}, nil
}

// Unsubscribe ends the subscription with the given id, sending UNSUBSCRIBE
// and discarding any pending delivery state for it.
func (c *Connection) Unsubscribe(id string) error {
	if r := c.subs.remove(id); r != nil {
		r.close()
	}
	c.pending.forget(id)

	uf := frame.New(frame.CmdUnsubscribe).Append(frame.HeaderID, id)
	return c.enqueue(frame.FrameItem(uf))
}

// Ack acknowledges messageID on subscription subID. ACK is always sent to
// the broker, even if there is no local record of the delivery (§4.6: the
// server is authoritative).
func (c *Connection) Ack(subID, messageID string) error {
	r, ok := c.subs.get(subID)
	mode := AckClient
	if ok {
		mode = r.ackMode
	}
	c.pending.resolve(subID, messageID, mode)

	af := frame.New(frame.CmdAck).
		Append(frame.HeaderID, messageID).
		Append(frame.HeaderSubscription, subID)
	return c.enqueue(frame.FrameItem(af))
}

// Nack negatively acknowledges messageID on subscription subID, with the
// same always-send semantics as Ack.
func (c *Connection) Nack(subID, messageID string) error {
	r, ok := c.subs.get(subID)
	mode := AckClient
	if ok {
		mode = r.ackMode
	}
	c.pending.resolve(subID, messageID, mode)

	nf := frame.New(frame.CmdNack).
		Append(frame.HeaderID, messageID).
		Append(frame.HeaderSubscription, subID)
	return c.enqueue(frame.FrameItem(nf))
}

// Begin starts a transaction with the given id. The manager itself is
// stateless about transactions (§4.8); id is simply carried on the wire.
func (c *Connection) Begin(id string) error {
	return c.enqueue(frame.FrameItem(frame.New(frame.CmdBegin).Append(frame.HeaderTransaction, id)))
}

// Commit commits the transaction with the given id.
func (c *Connection) Commit(id string) error {
	return c.enqueue(frame.FrameItem(frame.New(frame.CmdCommit).Append(frame.HeaderTransaction, id)))
}

// Abort aborts the transaction with the given id.
func (c *Connection) Abort(id string) error {
	return c.enqueue(frame.FrameItem(frame.New(frame.CmdAbort).Append(frame.HeaderTransaction, id)))
}

// NextInbound blocks for the next frame or server error the manager had no
// more specific destination for (anything but MESSAGE/RECEIPT; ERROR frames
// arrive as InboundEvent.Err). It returns io.EOF once the connection has
// shut down and every buffered event has been drained. Concurrent callers
// are serialized by inboundMu, mirroring the single shared-receiver
// invariant the connection manager is specified against even though a Go
// channel itself needs no such wrapper.
func (c *Connection) NextInbound() (*InboundEvent, error) {
	c.inboundMu.Lock()
	defer c.inboundMu.Unlock()
	evt, ok := <-c.inbound
	if !ok {
		return nil, io.EOF
	}
	return &evt, nil
}

// Close sends DISCONNECT (best effort) and tears the connection down. It is
// idempotent and safe to call more than once.
func (c *Connection) Close() error {
	if c.isShutdown() {
		return nil
	}
	select {
	case c.outbound <- frame.FrameItem(frame.New(frame.CmdDisconnect)):
	default:
	}
	c.shutdownLocal()
	return nil
}
