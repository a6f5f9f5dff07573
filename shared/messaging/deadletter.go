package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/draftea/order-system/shared/events"
)

// Dead letter reasons
const (
	ReasonTerminal         = "terminal"
	ReasonRetriesExhausted = "retries_exhausted"
)

// DeadLetter is a message that exhausted its retries or failed with a
// terminal error, together with the failure context.
type DeadLetter struct {
	Event      *events.Event `json:"event"`
	Endpoint   string        `json:"endpoint"`
	Reason     string        `json:"reason"`
	Error      string        `json:"error"`
	Attempts   int           `json:"attempts"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// DeadLetterSink stores dead letters for inspection and replay
type DeadLetterSink interface {
	Store(ctx context.Context, letter *DeadLetter) error
}

var _ DeadLetterSink = (*MemoryDeadLetterSink)(nil)

// MemoryDeadLetterSink keeps dead letters in memory. Non-durable, for the
// demo deployment mode and tests.
type MemoryDeadLetterSink struct {
	mux     sync.Mutex
	letters []*DeadLetter
}

// NewMemoryDeadLetterSink creates an in-memory dead letter sink
func NewMemoryDeadLetterSink() *MemoryDeadLetterSink {
	return &MemoryDeadLetterSink{}
}

// Store appends a dead letter
func (s *MemoryDeadLetterSink) Store(ctx context.Context, letter *DeadLetter) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.letters = append(s.letters, letter)
	return nil
}

// All returns a snapshot of stored dead letters
func (s *MemoryDeadLetterSink) All() []*DeadLetter {
	s.mux.Lock()
	defer s.mux.Unlock()
	letters := make([]*DeadLetter, len(s.letters))
	copy(letters, s.letters)
	return letters
}
