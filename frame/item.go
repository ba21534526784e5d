package frame

// Item is a single decoded unit: either a Frame or a heartbeat pulse (a bare
// LF at a frame boundary).
type Item struct {
	Frame     *Frame
	Heartbeat bool
}

// HeartbeatItem is the shared heartbeat value emitted by the decoder and by
// the connection manager's heartbeat timer.
func HeartbeatItem() Item {
	return Item{Heartbeat: true}
}

// FrameItem wraps f as an Item.
func FrameItem(f *Frame) Item {
	return Item{Frame: f}
}

// IsHeartbeat reports whether the item is a heartbeat pulse.
func (i Item) IsHeartbeat() bool {
	return i.Heartbeat
}
