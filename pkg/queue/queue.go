package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// QueueService accepts messages for asynchronous handling.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type QueueConfig struct {
	Workers    int
	RetryLimit int
	RetryDelay time.Duration
	// RetryPoll is how often due retries are moved back onto the queue.
	RetryPoll time.Duration
	// PopTimeout bounds one blocking pop so workers notice shutdown.
	PopTimeout time.Duration
}

type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"timestamp"`
}

// ParsePayload converts a decoded message payload into T.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case nil:
		return &result, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		if err := json.Unmarshal(b, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}

// Inline runs jobs synchronously in the caller. It stands in for the Redis
// queue when no Redis is configured.
type Inline struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewInline(jobs ...Job) *Inline {
	q := &Inline{jobs: make(map[string]Job, len(jobs))}
	for _, j := range jobs {
		q.jobs[j.Type()] = j
	}
	return q
}

func (q *Inline) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	job, ok := q.jobs[msgType]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	return job.Handle(ctx, payload)
}
