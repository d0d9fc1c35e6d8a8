package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/radieske/bet-settlement/pkg/contracts/events"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	p.channel = channel
	p.payload, _ = message.([]byte)
	return redis.NewIntResult(1, p.err)
}

func settledEvent() events.WagerSettled {
	return events.WagerSettled{
		WagerID:         "w-1",
		CycleID:         "c-1",
		Result:          "won",
		ActualReturn:    "30.00",
		SettlementState: "settled",
		Actor:           "system:settlement",
		Ts:              time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_KeysByWager(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, zaptest.NewLogger(t))

	require.NoError(t, p.WagerSettled(context.Background(), settledEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "w-1", string(w.msgs[0].Key))

	var got events.WagerSettled
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "30.00", got.ActualReturn)
	assert.Equal(t, "c-1", got.CycleID)
}

func TestKafkaPublisher_PropagatesError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	err := NewKafkaPublisher(w, zaptest.NewLogger(t)).WagerSettled(context.Background(), settledEvent())
	require.Error(t, err)
}

func TestRedisBroadcaster(t *testing.T) {
	pub := &fakePublisher{}
	b := NewRedisBroadcaster(pub, "settlement_broadcast")

	require.NoError(t, b.WagerSettled(context.Background(), settledEvent()))
	assert.Equal(t, "settlement_broadcast", pub.channel)

	var got Broadcast
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, "w-1", got.WagerID)
	assert.Equal(t, "won", got.Payload.Result)
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	w := &fakeWriter{}
	pub := &fakePublisher{err: errors.New("redis down")}
	f := Fanout{NewRedisBroadcaster(pub, "ch"), NewKafkaPublisher(w, zaptest.NewLogger(t))}

	err := f.WagerSettled(context.Background(), settledEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Len(t, w.msgs, 1, "kafka still receives the event")
}
