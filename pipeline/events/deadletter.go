package events

import "time"

// DeadLetterEvent records a stage message that will not be redelivered
type DeadLetterEvent struct {
	Topic     string    `json:"topic"`
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Stage     string    `json:"stage"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
	Payload   []byte    `json:"payload"`
	FailedAt  time.Time `json:"failedAt"`
}
