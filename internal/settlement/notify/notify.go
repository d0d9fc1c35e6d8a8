package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement/pkg/contracts/events"
)

// MessageWriter é o recorte do kafka.Writer usado aqui
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica wager_settled com a chave = wager id
type KafkaPublisher struct {
	writer MessageWriter
	log    *zap.Logger
}

func NewKafkaPublisher(w MessageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log}
}

func (p *KafkaPublisher) WagerSettled(ctx context.Context, e events.WagerSettled) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(e.WagerID),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish wager settled", zap.String("wager_id", e.WagerID), zap.Error(err))
		return err
	}

	p.log.Debug("published wager settled", zap.String("wager_id", e.WagerID))
	return nil
}

// Publisher é o recorte do redis.Client usado pelo broadcaster
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisBroadcaster repassa a liquidação para quem escuta o canal (painéis, notificação ao usuário)
type RedisBroadcaster struct {
	r       Publisher
	channel string
}

func NewRedisBroadcaster(r Publisher, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

// Payload padrão do broadcast
type Broadcast struct {
	WagerID string              `json:"wagerId"`
	Payload events.WagerSettled `json:"payload"`
}

func (b *RedisBroadcaster) WagerSettled(ctx context.Context, e events.WagerSettled) error {
	payload, err := json.Marshal(Broadcast{WagerID: e.WagerID, Payload: e})
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}

// Notifier é o mesmo contrato do settlement.Notifier
type Notifier interface {
	WagerSettled(ctx context.Context, e events.WagerSettled) error
}

// Fanout entrega para todos os destinos; um destino falho não impede os outros
type Fanout []Notifier

func (f Fanout) WagerSettled(ctx context.Context, e events.WagerSettled) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.WagerSettled(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
