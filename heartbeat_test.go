package stomp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNegotiateHeartbeatsTakesMax(t *testing.T) {
	client := HeartbeatSpec{Send: 5 * time.Second, Receive: 10 * time.Second}
	server := HeartbeatSpec{Send: 8 * time.Second, Receive: 2 * time.Second}

	sched := negotiateHeartbeats(client, server)

	assert.Equal(t, 5*time.Second, sched.outgoing, "outgoing = max(client.Send, server.Receive)")
	assert.Equal(t, 10*time.Second, sched.incoming, "incoming = max(client.Receive, server.Send)")
}

func TestNegotiateHeartbeatsZeroDisablesDirection(t *testing.T) {
	client := HeartbeatSpec{Send: 0, Receive: 0}
	server := HeartbeatSpec{Send: 0, Receive: 0}

	sched := negotiateHeartbeats(client, server)

	assert.Zero(t, sched.outgoing)
	assert.Zero(t, sched.incoming)
	assert.False(t, sched.dueToSend(time.Now().Add(time.Hour)))
	assert.False(t, sched.watchdogTripped(time.Now().Add(time.Hour)))
	assert.Zero(t, sched.watchdogInterval())
}

func TestWatchdogTripsAtTwiceIncomingInterval(t *testing.T) {
	sched := negotiateHeartbeats(
		HeartbeatSpec{Receive: 100 * time.Millisecond},
		HeartbeatSpec{Send: 100 * time.Millisecond},
	)
	base := sched.lastReceived

	assert.False(t, sched.watchdogTripped(base.Add(150*time.Millisecond)))
	assert.True(t, sched.watchdogTripped(base.Add(201*time.Millisecond)))
}

func TestWatchdogIntervalIsHalfIncoming(t *testing.T) {
	sched := negotiateHeartbeats(
		HeartbeatSpec{Receive: 100 * time.Millisecond},
		HeartbeatSpec{Send: 100 * time.Millisecond},
	)
	assert.Equal(t, 50*time.Millisecond, sched.watchdogInterval())
}

func TestDueToSendAfterOutgoingInterval(t *testing.T) {
	sched := negotiateHeartbeats(
		HeartbeatSpec{Send: 100 * time.Millisecond},
		HeartbeatSpec{Receive: 100 * time.Millisecond},
	)
	base := sched.lastSent

	assert.False(t, sched.dueToSend(base.Add(50*time.Millisecond)))
	assert.True(t, sched.dueToSend(base.Add(101*time.Millisecond)))
}

func TestHeartbeatSpecStringAndParseRoundTrip(t *testing.T) {
	h := HeartbeatSpec{Send: 10 * time.Second, Receive: 5 * time.Second}
	s := h.String()
	assert.Equal(t, "10000,5000", s)

	parsed, err := ParseHeartbeatSpec(s)
	assert.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseHeartbeatSpecRejectsNegative(t *testing.T) {
	_, err := ParseHeartbeatSpec("-1,1000")
	assert.Error(t, err)
}

func TestParseHeartbeatSpecRejectsMalformed(t *testing.T) {
	_, err := ParseHeartbeatSpec("not-a-number")
	assert.Error(t, err)
}
