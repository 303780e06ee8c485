package notify

import "sync"

// Notification is one recorded Publish call.
type Notification struct {
	StreamID string
	Event    string
	Payload  map[string]interface{}
}

// Recorder is a Sink that captures notifications for tests.
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish implements Sink.
func (r *Recorder) Publish(streamID, event string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifications = append(r.notifications, Notification{
		StreamID: streamID,
		Event:    event,
		Payload:  payload,
	})
}

// Notifications returns a copy of everything published so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// Len returns the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

// Verify interface compliance at compile time.
var _ Sink = (*Recorder)(nil)
