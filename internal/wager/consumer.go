package wager

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement/internal/settlement"
	"github.com/radieske/bet-settlement/pkg/contracts/events"
)

// MessageReader é o recorte do kafka.Reader usado pelo Processor
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// MessageWriter é o recorte do kafka.Writer usado para a DLQ
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Submitter grava a aposta; implementado por Service
type Submitter interface {
	Submit(ctx context.Context, e events.WagerSubmitted) (*settlement.Wager, error)
}

// Processor consome wager_submitted e grava as apostas.
// Payload inválido vai direto para a DLQ; falha de banco tenta de novo antes.
type Processor struct {
	Log     *zap.Logger
	Reader  MessageReader
	Service Submitter
	DLQ     MessageWriter // opcional

	Retries int
	Backoff time.Duration

	OnConsumed func()       // métricas
	OnCreated  func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run roda até o contexto ser cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			sleep(ctx, 500*time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.Handle(ctx, m)
	}
}

// Handle processa uma mensagem; nunca devolve erro, o destino final é o banco ou a DLQ
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	var ev events.WagerSubmitted
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.Log.Warn("invalid message", zap.Error(err))
		p.fail("decode")
		p.toDLQ(ctx, m, "decode: "+err.Error())
		return
	}

	w, err := p.Service.Submit(ctx, ev)
	for attempt := 0; err != nil && !errors.Is(err, ErrInvalidWager) && attempt < p.Retries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		sleep(ctx, time.Duration(attempt+1)*p.Backoff)
		w, err = p.Service.Submit(ctx, ev)
	}

	if err != nil {
		stage := "store"
		if errors.Is(err, ErrInvalidWager) {
			stage = "invalid"
		}
		p.Log.Warn("wager rejected",
			zap.String("submission_id", ev.SubmissionID),
			zap.String("stage", stage),
			zap.Error(err),
		)
		p.fail(stage)
		p.toDLQ(ctx, m, err.Error())
		return
	}

	if p.OnCreated != nil {
		p.OnCreated()
	}
	p.Log.Debug("wager intake ok", zap.String("submission_id", ev.SubmissionID), zap.String("wager_id", w.ID))
}

func (p *Processor) toDLQ(ctx context.Context, m kafka.Message, reason string) {
	if p.DLQ == nil {
		return
	}
	dlq := kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Time:    time.Now(),
		Headers: append(slices.Clone(m.Headers), kafka.Header{Key: "error", Value: []byte(reason)}),
	}
	if err := p.DLQ.WriteMessages(context.WithoutCancel(ctx), dlq); err != nil {
		p.Log.Error("dlq write failed", zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
