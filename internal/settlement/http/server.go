package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement/internal/settlement"
	"github.com/radieske/bet-settlement/internal/settlement/repo"
	"github.com/radieske/bet-settlement/internal/wager"
)

// ActorHeader identifica quem disparou a ação; vazio usa o ator padrão do Runner
const ActorHeader = "X-Actor"

// Wagers é o recorte do wager.Service usado pelas rotas admin
type Wagers interface {
	List(ctx context.Context, f settlement.WagerFilter, actor string) (*wager.Page, error)
	Get(ctx context.Context, id, actor string) (*settlement.Wager, error)
	Patch(ctx context.Context, id, actor string, req wager.PatchRequest) (*settlement.Wager, error)
	Delete(ctx context.Context, id, actor string) error
}

// API expõe o gatilho manual do ciclo e a consulta/edição de apostas
type API struct {
	Runner settlement.CycleRunner
	Wagers Wagers
	Log    *zap.Logger
}

// Router retorna o roteador admin
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/settlement/run", a.runCycle) // Dispara um ciclo e devolve o resumo
	if a.Wagers != nil {
		r.Get("/v1/wagers", a.listWagers)          // Lista filtrada e paginada
		r.Get("/v1/wagers/{id}", a.getWager)       // Lê a aposta com status recalculado
		r.Patch("/v1/wagers/{id}", a.patchWager)   // Edição parcial auditada
		r.Delete("/v1/wagers/{id}", a.deleteWager) // Soft delete
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func actorOf(r *http.Request, def string) string {
	if v := strings.TrimSpace(r.Header.Get(ActorHeader)); v != "" {
		return v
	}
	return def
}

// runCycle é síncrono: a resposta só sai com o ciclo terminado
func (a *API) runCycle(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r, "")
	// ciclo iniciado termina mesmo se o cliente desconectar
	sum, err := a.Runner.RunCycle(context.WithoutCancel(r.Context()), settlement.TriggerManual, actor)
	switch {
	case errors.Is(err, settlement.ErrCycleInProgress):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "summary": sum})
	case err != nil:
		a.Log.Warn("manual settlement cycle failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "summary": sum})
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}

func (a *API) getWager(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wg, err := a.Wagers.Get(r.Context(), id, actorOf(r, "system:read"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWagerView(wg))
}

type listResponse struct {
	Wagers []WagerView `json:"wagers"`
	Total  int         `json:"total"`
	Page   int         `json:"page"`
	Pages  int         `json:"pages"`
}

func (a *API) listWagers(w http.ResponseWriter, r *http.Request) {
	f, err := wager.ParseListQuery(r.URL.Query())
	if err != nil {
		a.writeErr(w, err)
		return
	}
	page, err := a.Wagers.List(r.Context(), f, actorOf(r, "system:read"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	out := listResponse{Wagers: make([]WagerView, 0, len(page.Wagers)), Total: page.Total, Page: page.Page, Pages: page.Pages}
	for i := range page.Wagers {
		out.Wagers = append(out.Wagers, toWagerView(&page.Wagers[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) patchWager(w http.ResponseWriter, r *http.Request) {
	var req wager.PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid update payload: " + err.Error()})
		return
	}
	wg, err := a.Wagers.Patch(r.Context(), chi.URLParam(r, "id"), actorOf(r, "system:admin"), req)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWagerView(wg))
}

func (a *API) deleteWager(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Wagers.Delete(r.Context(), id, actorOf(r, "system:admin")); err != nil {
		a.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	case errors.Is(err, wager.ErrInvalidWager), errors.Is(err, wager.ErrInvalidQuery):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a.Log.Error("admin request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
