package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageState enumerates the consumer milestones for one delivery.
type MessageState string

const (
	StateReceived     MessageState = "received"
	StateSummarizing  MessageState = "summarizing"
	StatePersisting   MessageState = "persisting"
	StateAcknowledged MessageState = "acknowledged"
	StateDeadLettered MessageState = "dead_lettered"
)

var stateOrder = map[MessageState]int{
	StateReceived:     0,
	StateSummarizing:  1,
	StatePersisting:   2,
	StateAcknowledged: 3,
	StateDeadLettered: 3,
}

// CanAdvanceTo reports whether next is a forward transition from s.
func (s MessageState) CanAdvanceTo(next MessageState) bool {
	from, ok := stateOrder[s]
	if !ok {
		return false
	}
	to, ok := stateOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// DeadLetterReason explains why a message left the pipeline.
type DeadLetterReason string

const (
	ReasonMalformedPayload   DeadLetterReason = "malformed_payload"
	ReasonSummarizeExhausted DeadLetterReason = "summarize_exhausted"
	ReasonPersistExhausted   DeadLetterReason = "persist_exhausted"
)

// DeadLetter is the envelope published to the dead-letter route.
type DeadLetter struct {
	ID       string           `json:"id"`
	Topic    string           `json:"topic"`
	Reason   DeadLetterReason `json:"reason"`
	Error    string           `json:"error"`
	Payload  string           `json:"payload"`
	Attempts int              `json:"attempts"`
	FailedAt time.Time        `json:"failedAt"`
}

// NewDeadLetter builds an envelope for the original message body.
func NewDeadLetter(topic string, reason DeadLetterReason, body []byte, attempts int, cause error) DeadLetter {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return DeadLetter{
		ID:       uuid.NewString(),
		Topic:    topic,
		Reason:   reason,
		Error:    msg,
		Payload:  string(body),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
}
