package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/radieske/bet-settlement/internal/shared/config"
)

// FixtureStatus é o estado de uma partida segundo a fonte externa
type FixtureStatus string

const (
	StatusScheduled FixtureStatus = "scheduled"
	StatusLive      FixtureStatus = "live"
	StatusFinished  FixtureStatus = "finished"
)

// Fixture é o retrato de uma partida real no momento da consulta.
// Nunca é persistido nem cacheado entre ciclos.
type Fixture struct {
	ProviderEventID string
	Status          FixtureStatus
	HomeTeam        string
	AwayTeam        string
	ScoreHome       *int
	ScoreAway       *int
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// Provider consulta uma partida pelo id do provider.
// (nil, nil) significa "partida não encontrada"; erro é falha transitória.
type Provider interface {
	Name() string
	GetFixtureByEventID(ctx context.Context, eventID string) (*Fixture, error)
}

// None nunca encontra nada; desliga o caminho do timer
type None struct{}

func (None) Name() string { return config.ProviderNone }

func (None) GetFixtureByEventID(context.Context, string) (*Fixture, error) { return nil, nil }

// New escolhe a variante uma única vez, na subida do processo
func New(cfg config.Config) (Provider, error) {
	switch cfg.SettlementProvider {
	case config.ProviderNone, "":
		return None{}, nil
	case config.ProviderAPIFootball:
		if cfg.APIFootballKey == "" {
			return nil, fmt.Errorf("provider %s: missing api key", cfg.SettlementProvider)
		}
		return NewAPIFootball(cfg.APIFootballBaseURL, cfg.APIFootballKey, cfg.ProviderTimeout), nil
	default:
		return nil, fmt.Errorf("unknown settlement provider %q", cfg.SettlementProvider)
	}
}
