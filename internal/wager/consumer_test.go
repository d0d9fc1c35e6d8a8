package wager

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type dlqWriter struct{ msgs []kafka.Message }

func (w *dlqWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

// sliceReader entrega as mensagens e depois bloqueia até o ctx cancelar
type sliceReader struct{ msgs []kafka.Message }

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

type stageCounter map[string]int

func (c stageCounter) add(stage string) { c[stage]++ }

func newTestProcessor(t *testing.T, repo *memRepo, dlq *dlqWriter, stages stageCounter) *Processor {
	clock := now
	return &Processor{
		Log:     zaptest.NewLogger(t),
		Service: newTestService(t, repo, &clock),
		DLQ:     dlq,
		Retries: 2,
		Backoff: time.Millisecond,
		OnError: stages.add,
	}
}

func msgFor(t *testing.T, v any) kafka.Message {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("k"), Value: b}
}

func TestProcessor_CreatesWager(t *testing.T) {
	repo := newMemRepo()
	dlq := &dlqWriter{}
	stages := stageCounter{}
	p := newTestProcessor(t, repo, dlq, stages)
	created := 0
	p.OnCreated = func() { created++ }

	p.Handle(context.Background(), msgFor(t, single()))

	assert.Equal(t, 1, created)
	assert.Len(t, repo.wagers, 1)
	assert.Empty(t, dlq.msgs)
	assert.Empty(t, stages)
}

func TestProcessor_InvalidGoesToDLQWithoutRetry(t *testing.T) {
	repo := newMemRepo()
	dlq := &dlqWriter{}
	stages := stageCounter{}
	p := newTestProcessor(t, repo, dlq, stages)

	e := single()
	e.Currency = "x"
	p.Handle(context.Background(), msgFor(t, e))

	assert.Equal(t, 0, repo.creates)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "error", dlq.msgs[0].Headers[0].Key)
	assert.Equal(t, 1, stages["invalid"])
}

func TestProcessor_DecodeErrorGoesToDLQ(t *testing.T) {
	dlq := &dlqWriter{}
	stages := stageCounter{}
	p := newTestProcessor(t, newMemRepo(), dlq, stages)

	p.Handle(context.Background(), kafka.Message{Value: []byte("{not json")})
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, []byte("{not json"), dlq.msgs[0].Value)
	assert.Equal(t, 1, stages["decode"])
}

func TestProcessor_RetriesStoreErrors(t *testing.T) {
	repo := newMemRepo()
	repo.failFor = 2
	dlq := &dlqWriter{}
	stages := stageCounter{}
	p := newTestProcessor(t, repo, dlq, stages)

	p.Handle(context.Background(), msgFor(t, single()))
	assert.Equal(t, 3, repo.creates)
	assert.Len(t, repo.wagers, 1)
	assert.Empty(t, dlq.msgs)

	repo.failFor = 5
	p.Handle(context.Background(), msgFor(t, single()))
	assert.Equal(t, 6, repo.creates)
	assert.Len(t, dlq.msgs, 1)
	assert.Equal(t, 1, stages["store"])
}

func TestProcessor_RunStopsOnCancel(t *testing.T) {
	repo := newMemRepo()
	p := newTestProcessor(t, repo, &dlqWriter{}, stageCounter{})
	p.Reader = &sliceReader{msgs: []kafka.Message{msgFor(t, single())}}
	consumed := 0
	p.OnConsumed = func() { consumed++ }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.wagers) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, consumed)
}

func TestProcessor_DLQKeepsSourceHeaders(t *testing.T) {
	repo := newMemRepo()
	dlq := &dlqWriter{}
	p := newTestProcessor(t, repo, dlq, stageCounter{})

	// capacidade sobrando: um append direto escreveria no array do chamador
	headers := make([]kafka.Header, 1, 4)
	headers[0] = kafka.Header{Key: "trace", Value: []byte("t-1")}
	backing := headers[:2]

	m := kafka.Message{Key: []byte("k"), Value: []byte("{not json"), Headers: headers}
	p.Handle(context.Background(), m)

	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, []kafka.Header{
		{Key: "trace", Value: []byte("t-1")},
		{Key: "error", Value: dlq.msgs[0].Headers[1].Value},
	}, dlq.msgs[0].Headers)
	assert.Len(t, m.Headers, 1)
	assert.Empty(t, backing[1].Key, "array do chamador intacto")
}
