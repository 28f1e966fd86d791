// Package eventbus fans out the channel lifecycle controller's structured
// events (§4.7) to any number of subscribers. It is grounded on the
// teacher's progress pub-sub service (tvarr internal/service/progress),
// rewritten around this spec's event vocabulary instead of ffmpeg job
// progress alone, and retyped from per-job callbacks to one typed topic.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// Type names the kind of lifecycle event (§4.7 table).
type Type string

const (
	ChannelReady      Type = "channel_ready"
	TranscodeStart    Type = "transcode_start"
	TranscodeProgress Type = "transcode_progress"
	TranscodeError    Type = "transcode_error"
	StreamStopped     Type = "stream_stopped"
	StreamRestarted   Type = "stream_restarted"
	AllStopped        Type = "all_stopped"
	Metrics           Type = "metrics"
)

// Event is a single structured lifecycle event. Payload is a Type-specific
// value (see the payload structs in this package); consumers type-assert
// on Type to interpret it.
type Event struct {
	Type    Type `json:"type"`
	CID     int  `json:"cid,omitempty"`
	Payload any  `json:"payload"`
}

// ChannelReadyPayload is channel_ready's payload.
type ChannelReadyPayload struct {
	Filename string `json:"filename"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Encap    string `json:"encap"`
	Bitrate  string `json:"bitrate"`
	Loop     bool   `json:"loop"`
	Codec    string `json:"codec"`
	Preset   string `json:"preset"`
	VBitrate string `json:"vbitrate"`
	ABitrate string `json:"abitrate"`
	ThumbURL string `json:"thumb_url,omitempty"`
}

// TranscodeStartPayload is transcode_start's payload. Codec is "remux" for
// the smart-ingest stream-copy path, otherwise the target codec.
type TranscodeStartPayload struct {
	Codec  string `json:"codec"`
	Preset string `json:"preset"`
}

// TranscodeProgressPayload is transcode_progress's payload.
type TranscodeProgressPayload struct {
	Pct     int     `json:"pct"`
	ETASecs int     `json:"eta_secs"`
	FPS     float64 `json:"fps,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

// TranscodeErrorPayload is transcode_error's payload.
type TranscodeErrorPayload struct {
	Error string `json:"error"`
}

// StreamRestartedPayload is stream_restarted's payload: a snapshot of the
// channel metadata after the restart.
type StreamRestartedPayload struct {
	Meta any `json:"meta"`
}

// NICMetrics is one NIC's sampled throughput.
type NICMetrics struct {
	TxMbps float64 `json:"tx_mbps"`
	RxMbps float64 `json:"rx_mbps"`
}

// MetricsPayload is the metrics event's payload (§4.7, host sampler).
type MetricsPayload struct {
	CPUPercent float64               `json:"cpu"`
	MemPercent float64               `json:"mem"`
	MemUsedGB  float64               `json:"mem_used_gb"`
	MemTotalGB float64               `json:"mem_total_gb"`
	NICs       map[string]NICMetrics `json:"nics"`
}

// Subscriber is a handle returned by Subscribe; call Unsubscribe to
// detach. Events delivers a buffered channel of events; a subscriber
// that never drains it only ever misses events, never blocks the bus.
type Subscriber struct {
	id     string
	events chan Event
	bus    *Bus
}

// Events returns the receive-only channel of events for this subscriber.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Unsubscribe detaches this subscriber from the bus and closes its channel.
func (s *Subscriber) Unsubscribe() { s.bus.unsubscribe(s.id) }

// Bus is the single topic of lifecycle events (§4.7). Delivery is
// best-effort fan-out (§4.7, §5): a slow or broken subscriber's buffer
// simply overflows and drops the oldest pending event rather than
// blocking the publisher, which is always a registry-owned goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	bufferSize  int
}

// New builds an event bus. bufferSize is the per-subscriber channel
// capacity before events start being dropped; 0 selects a sane default.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe attaches a new subscriber to the bus.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch
	return &Subscriber{id: id, events: ch, bus: b}
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(ch)
}

// Publish fans an event out to every current subscriber. A subscriber
// whose buffer is full has its oldest pending event dropped to make
// room, per the "best-effort, never block the core" delivery rule (§4.7).
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// SubscriberCount reports the current number of attached subscribers,
// useful for tests and for the auto-start delay rationale (§5: "to allow
// subscribers to attach").
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
