package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRedis implements the list and sorted-set commands the queue needs.
type memRedis struct {
	mu    sync.Mutex
	lists map[string][]string
	zsets map[string]map[string]float64
}

func newMemRedis() *memRedis {
	return &memRedis{lists: map[string][]string{}, zsets: map[string]map[string]float64{}}
}

func (m *memRedis) Ping(context.Context) *redis.StatusCmd { return redis.NewStatusResult("PONG", nil) }

func (m *memRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range values {
		var s string
		switch x := v.(type) {
		case []byte:
			s = string(x)
		case string:
			s = x
		}
		m.lists[key] = append([]string{s}, m.lists[key]...)
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *memRedis) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		l := m.lists[keys[0]]
		if n := len(l); n > 0 {
			v := l[n-1]
			m.lists[keys[0]] = l[:n-1]
			m.mu.Unlock()
			return redis.NewStringSliceResult([]string{keys[0], v}, nil)
		}
		m.mu.Unlock()
		if ctx.Err() != nil {
			return redis.NewStringSliceResult(nil, ctx.Err())
		}
		if time.Now().After(deadline) {
			return redis.NewStringSliceResult(nil, redis.Nil)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (m *memRedis) ZAdd(_ context.Context, key string, members ...redis.Z) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.zsets[key] == nil {
		m.zsets[key] = map[string]float64{}
	}
	for _, z := range members {
		m.zsets[key][string(z.Member.([]byte))] = z.Score
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (m *memRedis) ZRangeByScore(_ context.Context, key string, _ *redis.ZRangeBy) *redis.StringSliceCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for member := range m.zsets[key] {
		out = append(out, member)
	}
	sort.Strings(out)
	return redis.NewStringSliceResult(out, nil)
}

func (m *memRedis) ZRem(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, mem := range members {
		s := mem.(string)
		if _, ok := m.zsets[key][s]; ok {
			delete(m.zsets[key], s)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memRedis) listLen(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[key])
}

type scanPayload struct {
	Symbols []string `json:"symbols"`
}

type recordingJob struct {
	mu    sync.Mutex
	got   [][]string
	fails int
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "scan.test" }

func (j *recordingJob) Handle(_ context.Context, payload interface{}) error {
	p, err := ParsePayload[scanPayload](payload)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.got = append(j.got, p.Symbols)
	if j.fails > 0 {
		j.fails--
		return errors.New("upstream down")
	}
	return nil
}

func (j *recordingJob) calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.got)
}

func newTestQueue(client RedisAPI, cfg QueueConfig) *RedisQueue {
	cfg.PopTimeout = 10 * time.Millisecond
	cfg.RetryPoll = 5 * time.Millisecond
	return NewRedisQueue(nil, cfg, client, WithKeyPrefix("test"))
}

func TestRedisQueueDeliversPayload(t *testing.T) {
	rdb := newMemRedis()
	q := newTestQueue(rdb, QueueConfig{Workers: 2})
	job := &recordingJob{}
	q.RegisterJob(job)
	require.NoError(t, q.Start(context.Background()))
	defer func() { _ = q.Stop(context.Background()) }()

	require.NoError(t, q.PublishMessage(context.Background(), "scan.test", scanPayload{Symbols: []string{"AAPL", "MSFT"}}))

	require.Eventually(t, func() bool { return job.calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"AAPL", "MSFT"}, job.got[0])
}

func TestRedisQueueRetriesThenDeadLetters(t *testing.T) {
	rdb := newMemRedis()
	q := newTestQueue(rdb, QueueConfig{RetryLimit: 1, RetryDelay: time.Millisecond})
	job := &recordingJob{fails: 5}
	q.RegisterJob(job)
	require.NoError(t, q.Start(context.Background()))
	defer func() { _ = q.Stop(context.Background()) }()

	require.NoError(t, q.Enqueue(context.Background(), "scan.test", scanPayload{}))

	require.Eventually(t, func() bool { return rdb.listLen("test:dlq") == 1 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, job.calls())
}

func TestRedisQueueDeadLettersUnknownType(t *testing.T) {
	rdb := newMemRedis()
	q := newTestQueue(rdb, QueueConfig{})
	require.NoError(t, q.Start(context.Background()))
	defer func() { _ = q.Stop(context.Background()) }()

	require.NoError(t, q.Enqueue(context.Background(), "nobody", nil))
	require.Eventually(t, func() bool { return rdb.listLen("test:dlq") == 1 }, time.Second, 5*time.Millisecond)
}

func TestInlineRunsJobInCaller(t *testing.T) {
	job := &recordingJob{}
	q := NewInline(job)

	require.NoError(t, q.PublishMessage(context.Background(), "scan.test", &scanPayload{Symbols: []string{"NVDA"}}))
	assert.Equal(t, [][]string{{"NVDA"}}, job.got)
	assert.Error(t, q.PublishMessage(context.Background(), "other", nil))
}

func TestParsePayloadFromDecodedMap(t *testing.T) {
	p, err := ParsePayload[scanPayload](map[string]interface{}{"symbols": []interface{}{"V"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"V"}, p.Symbols)

	_, err = ParsePayload[scanPayload](42)
	assert.Error(t, err)
}
