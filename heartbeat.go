package stomp

import "time"

// heartbeatSchedule tracks the negotiated heartbeat intervals for a single
// connection lifetime plus the last-sent/last-received timestamps the
// manager loop uses to decide when to pulse or trip the watchdog.
type heartbeatSchedule struct {
	outgoing time.Duration // 0 disables sending pulses
	incoming time.Duration // 0 disables the watchdog

	lastSent     time.Time
	lastReceived time.Time
}

// negotiateHeartbeats applies the STOMP rule of §4.5: the negotiated
// outgoing interval is max(client-send, server-receive); the negotiated
// incoming interval is max(client-receive, server-send). A zero result in
// either direction disables it.
func negotiateHeartbeats(client, server HeartbeatSpec) heartbeatSchedule {
	now := time.Now()
	return heartbeatSchedule{
		outgoing:     maxDuration(client.Send, server.Receive),
		incoming:     maxDuration(client.Receive, server.Send),
		lastSent:     now,
		lastReceived: now,
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func (h *heartbeatSchedule) markSent(t time.Time)     { h.lastSent = t }
func (h *heartbeatSchedule) markReceived(t time.Time) { h.lastReceived = t }

// dueToSend reports whether the outgoing interval has elapsed since the
// last pulse or frame was written.
func (h *heartbeatSchedule) dueToSend(now time.Time) bool {
	return h.outgoing > 0 && now.Sub(h.lastSent) >= h.outgoing
}

// watchdogTripped reports whether twice the incoming interval has elapsed
// since the last byte was received from the server.
func (h *heartbeatSchedule) watchdogTripped(now time.Time) bool {
	return h.incoming > 0 && now.Sub(h.lastReceived) > 2*h.incoming
}

// watchdogInterval is the tick period for the watchdog check: half the
// incoming interval, as specified in §4.3. Zero means the watchdog is
// disabled.
func (h *heartbeatSchedule) watchdogInterval() time.Duration {
	if h.incoming <= 0 {
		return 0
	}
	return h.incoming / 2
}
