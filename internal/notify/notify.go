// Package notify fans out notifications for applied stream events.
// Delivery is best-effort: publishing happens after the database
// commit and a lost notification is never a reason to fail or retry
// the event itself.
package notify

// Sink receives one notification per applied event. StreamID is the
// fan-out channel, event is the on-chain event name. Publish must not
// block the caller beyond a buffered channel send.
type Sink interface {
	Publish(streamID string, event string, payload map[string]interface{})
}

// NopSink discards all notifications. Used when fan-out is disabled.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(string, string, map[string]interface{}) {}

// Verify interface compliance at compile time.
var _ Sink = NopSink{}
