package simulator

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Server imita GET /fixtures?id= da API-Football
type Server struct {
	Catalog *Catalog
	Log     *zap.Logger
	Now     func() time.Time

	// FailRate em [0,1): fração de respostas 503 para exercitar o caminho de erro do settlement
	FailRate float64
	Rand     func() float64

	OnRequest func(result string) // métricas
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/fixtures", s.fixtures)
	return r
}

type apiFixture struct {
	Fixture struct {
		ID     int64  `json:"id"`
		Date   string `json:"date"`
		Status struct {
			Short   string `json:"short"`
			Elapsed *int   `json:"elapsed"`
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
}

type apiResponse struct {
	Get        string            `json:"get"`
	Parameters map[string]string `json:"parameters"`
	Errors     []string          `json:"errors"`
	Results    int               `json:"results"`
	Response   []apiFixture      `json:"response"`
}

func (s *Server) fixtures(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-apisports-key") == "" {
		s.count("unauthorized")
		http.Error(w, "missing api key", http.StatusUnauthorized)
		return
	}
	if s.FailRate > 0 && s.Rand != nil && s.Rand() < s.FailRate {
		s.count("injected_failure")
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
		return
	}

	id := r.URL.Query().Get("id")
	out := apiResponse{
		Get:        "fixtures",
		Parameters: map[string]string{"id": id},
		Errors:     []string{},
		Response:   []apiFixture{},
	}

	if snap, ok := s.Catalog.At(id, s.Now()); ok {
		var f apiFixture
		f.Fixture.ID = snap.ID
		f.Fixture.Date = snap.KickoffAt.UTC().Format(time.RFC3339)
		f.Fixture.Status.Short = snap.Short
		f.Fixture.Status.Elapsed = snap.Elapsed
		f.Teams.Home.Name = snap.HomeTeam
		f.Teams.Away.Name = snap.AwayTeam
		f.Goals.Home = snap.GoalsHome
		f.Goals.Away = snap.GoalsAway
		out.Response = append(out.Response, f)
		s.count(snap.Short)
	} else {
		s.count("not_found")
	}
	out.Results = len(out.Response)

	s.Log.Debug("fixture served", zap.String("id", id), zap.Int("results", out.Results))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) count(result string) {
	if s.OnRequest != nil {
		s.OnRequest(result)
	}
}
