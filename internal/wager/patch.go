package wager

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement/internal/settlement"
)

// Nullable distingue campo ausente (Set=false) de null explícito (Set=true, Value=nil)
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// PatchRequest é o corpo do PATCH; só os campos enviados são aplicados
type PatchRequest struct {
	Kind      *string    `json:"kind"`
	Teams     *string    `json:"teams"`
	BetType   *string    `json:"bet_type"`
	Odds      *float64   `json:"odds"`
	Stake     *float64   `json:"stake"`
	Currency  *string    `json:"currency"`
	MatchTime *time.Time `json:"match_time"`
	Status    *string    `json:"status"`

	Result       Nullable[string]  `json:"result"`
	ActualReturn Nullable[float64] `json:"actual_return"`
	Notes        Nullable[string]  `json:"notes"`
}

// BuildPatch valida o pedido com as mesmas regras da entrada.
// changes é o diff gravado no audit log, com os valores já normalizados.
func BuildPatch(req PatchRequest) (settlement.WagerPatch, map[string]any, error) {
	var (
		p       settlement.WagerPatch
		errs    []error
		changes = map[string]any{}
	)

	if req.Kind != nil {
		k := settlement.Kind(strings.ToLower(strings.TrimSpace(*req.Kind)))
		if k != settlement.KindSingle && k != settlement.KindParlay {
			errs = append(errs, fmt.Errorf("kind %q", *req.Kind))
		}
		p.Kind, changes["kind"] = &k, k
	}
	if req.Teams != nil {
		v := strings.TrimSpace(*req.Teams)
		errs = append(errs, textLen("teams", v, 3, 200))
		p.Teams, changes["teams"] = &v, v
	}
	if req.BetType != nil {
		v := strings.TrimSpace(*req.BetType)
		errs = append(errs, textLen("bet_type", v, 2, 100))
		p.BetType, changes["bet_type"] = &v, v
	}
	if req.Odds != nil {
		v := decimal.NewFromFloat(*req.Odds)
		if v.LessThan(minOdds) {
			errs = append(errs, fmt.Errorf("odds %s below %s", v, minOdds))
		}
		p.Odds, changes["odds"] = &v, v
	}
	if req.Stake != nil {
		v := decimal.NewFromFloat(*req.Stake)
		if !v.IsPositive() {
			errs = append(errs, errors.New("stake must be positive"))
		}
		p.Stake, changes["stake"] = &v, v
	}
	if req.Currency != nil {
		v := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if utf8.RuneCountInString(v) != 3 {
			errs = append(errs, fmt.Errorf("currency %q must have 3 letters", *req.Currency))
		}
		p.Currency, changes["currency"] = &v, v
	}
	if req.MatchTime != nil {
		if req.MatchTime.IsZero() {
			errs = append(errs, errors.New("match_time is required"))
		}
		p.MatchTime, changes["match_time"] = req.MatchTime, *req.MatchTime
	}
	if req.Status != nil {
		v := settlement.Status(strings.ToLower(strings.TrimSpace(*req.Status)))
		switch v {
		case settlement.StatusUpcoming, settlement.StatusLive, settlement.StatusFinished, settlement.StatusSettled:
		default:
			errs = append(errs, fmt.Errorf("status %q", *req.Status))
		}
		p.Status, changes["status"] = &v, v
	}

	if req.Result.Set {
		p.SetResult = true
		changes["result"] = nil
		if req.Result.Value != nil {
			v := settlement.Result(strings.ToLower(strings.TrimSpace(*req.Result.Value)))
			switch v {
			case settlement.ResultWon, settlement.ResultLost, settlement.ResultPush, settlement.ResultVoid:
			default:
				errs = append(errs, fmt.Errorf("result %q", *req.Result.Value))
			}
			p.Result, changes["result"] = &v, v
		}
	}
	if req.ActualReturn.Set {
		p.SetActualReturn = true
		changes["actual_return"] = nil
		if req.ActualReturn.Value != nil {
			v := decimal.NewFromFloat(*req.ActualReturn.Value)
			if v.IsNegative() {
				errs = append(errs, errors.New("actual_return must not be negative"))
			}
			p.ActualReturn, changes["actual_return"] = &v, v
		}
	}
	if req.Notes.Set {
		p.SetNotes = true
		changes["notes"] = nil
		if req.Notes.Value != nil {
			v := strings.TrimSpace(*req.Notes.Value)
			errs = append(errs, textLen("notes", v, 0, 2000))
			p.Notes, changes["notes"] = &v, v
		}
	}

	if p.Empty() {
		errs = append(errs, errors.New("at least one field is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return settlement.WagerPatch{}, nil, fmt.Errorf("%w: %w", ErrInvalidWager, err)
	}
	return p, changes, nil
}

// ErrInvalidQuery marca filtros de listagem rejeitados
var ErrInvalidQuery = errors.New("invalid list query")

// Limites da listagem
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ParseListQuery lê status, from, to, search, sort, order, limit e offset da query string
func ParseListQuery(v url.Values) (settlement.WagerFilter, error) {
	f := settlement.WagerFilter{
		Search: strings.TrimSpace(v.Get("search")),
		Sort:   settlement.SortMatchTime,
		Limit:  DefaultListLimit,
	}
	var errs []error

	if s := v.Get("status"); s != "" {
		f.Status = settlement.Status(strings.ToLower(s))
		switch f.Status {
		case settlement.StatusUpcoming, settlement.StatusLive, settlement.StatusFinished, settlement.StatusSettled:
		default:
			errs = append(errs, fmt.Errorf("status %q", s))
		}
	}
	for _, bound := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		s := v.Get(bound.key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s date %q", bound.key, s))
			continue
		}
		*bound.dst = &t
	}
	if s := v.Get("sort"); s != "" {
		switch s {
		case settlement.SortMatchTime, settlement.SortCreatedAt, settlement.SortStake, settlement.SortOdds:
			f.Sort = s
		default:
			errs = append(errs, fmt.Errorf("sort %q", s))
		}
	}
	switch strings.ToLower(v.Get("order")) {
	case "", "asc":
	case "desc":
		f.Desc = true
	default:
		errs = append(errs, fmt.Errorf("order %q", v.Get("order")))
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > MaxListLimit {
			errs = append(errs, fmt.Errorf("limit must be 1-%d", MaxListLimit))
		} else {
			f.Limit = n
		}
	}
	if s := v.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			errs = append(errs, errors.New("offset must be >= 0"))
		} else {
			f.Offset = n
		}
	}

	if err := errors.Join(errs...); err != nil {
		return settlement.WagerFilter{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return f, nil
}
