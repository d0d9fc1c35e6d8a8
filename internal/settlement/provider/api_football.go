package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/radieske/bet-settlement/internal/shared/config"
)

// APIFootball consulta GET {base}/fixtures?id=... da API-Football
type APIFootball struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	now func() time.Time
}

func NewAPIFootball(baseURL, apiKey string, timeout time.Duration) *APIFootball {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIFootball{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

func (c *APIFootball) Name() string { return config.ProviderAPIFootball }

// formato (parcial) da resposta de /fixtures
type fixturesResponse struct {
	Response []struct {
		Fixture struct {
			ID     int64  `json:"id"`
			Date   string `json:"date"`
			Status struct {
				Short string `json:"short"`
			} `json:"status"`
		} `json:"fixture"`
		Teams struct {
			Home struct {
				Name string `json:"name"`
			} `json:"home"`
			Away struct {
				Name string `json:"name"`
			} `json:"away"`
		} `json:"teams"`
		Goals struct {
			Home *int `json:"home"`
			Away *int `json:"away"`
		} `json:"goals"`
	} `json:"response"`
}

func (c *APIFootball) GetFixtureByEventID(ctx context.Context, eventID string) (*Fixture, error) {
	u, err := url.Parse(c.BaseURL + "/fixtures")
	if err != nil {
		return nil, fmt.Errorf("api_football url: %w", err)
	}
	q := u.Query()
	q.Set("id", eventID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-apisports-key", c.APIKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api_football request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("api_football http %d", res.StatusCode)
	}

	var payload fixturesResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("api_football decode: %w", err)
	}
	if len(payload.Response) == 0 || payload.Response[0].Fixture.ID == 0 {
		return nil, nil
	}

	item := payload.Response[0]
	status := StatusFromShort(item.Fixture.Status.Short)
	fx := &Fixture{
		ProviderEventID: strconv.FormatInt(item.Fixture.ID, 10),
		Status:          status,
		HomeTeam:        item.Teams.Home.Name,
		AwayTeam:        item.Teams.Away.Name,
		ScoreHome:       item.Goals.Home,
		ScoreAway:       item.Goals.Away,
	}
	if item.Fixture.Date != "" {
		if t, err := time.Parse(time.RFC3339, item.Fixture.Date); err == nil {
			fx.StartedAt = &t
		}
	}
	if status == StatusFinished {
		now := c.now()
		fx.FinishedAt = &now
	}
	return fx, nil
}

// StatusFromShort traduz o código curto da API-Football.
// Cancelada/abandonada também conta como encerrada: sem placar, vira needs_review.
func StatusFromShort(short string) FixtureStatus {
	switch strings.ToUpper(strings.TrimSpace(short)) {
	case "FT", "AET", "PEN", "CANC", "ABD", "AWD", "WO":
		return StatusFinished
	case "1H", "2H", "HT", "ET", "BT", "P", "LIVE":
		return StatusLive
	default:
		return StatusScheduled
	}
}
