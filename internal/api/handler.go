package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dreadwatch/dreadwatch/internal/auth"
	"github.com/dreadwatch/dreadwatch/internal/store"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store *store.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given store and registers all routes.
// protect wraps the death-logging endpoint with authentication and rate
// limiting; pass nil to leave it open (tests, auth mode "none").
func New(st *store.Store, protect func(http.Handler) http.Handler) http.Handler {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}

	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.Handle("/api/v1/deaths", protect(http.HandlerFunc(h.postDeath)))
	h.mux.HandleFunc("/api/v1/dread", h.listElevated)
	h.mux.HandleFunc("/api/v1/dread/", h.getDread) // subtree, extracts {area_id}
	h.mux.HandleFunc("/api/v1/health", h.health)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// postDeath handles POST /api/v1/deaths: records one death event for an area.
func (h *Handler) postDeath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req DeathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.AreaID = strings.TrimSpace(req.AreaID)
	if req.AreaID == "" {
		jsonErr(w, http.StatusBadRequest, "area_id is required")
		return
	}

	count, err := h.store.IncrementDeathCount(r.Context(), req.AreaID)
	if err != nil {
		slog.Error("api: log death failed", "area", req.AreaID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "could not log death")
		return
	}

	client := auth.ClientName(r.Context())
	if client == "" {
		client = "unknown"
	}
	slog.Info("api: death logged",
		"area", req.AreaID,
		"death_count", count,
		"client", client,
	)

	jsonResp(w, http.StatusOK, DeathResponse{AreaID: req.AreaID, DeathCount: count})
}

// getDread handles GET /api/v1/dread/{area_id}: a single area's level.
// Areas with no row read as level 0.
func (h *Handler) getDread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	areaID := strings.TrimPrefix(r.URL.Path, "/api/v1/dread/")
	if areaID == "" {
		h.listElevated(w, r)
		return
	}

	level, err := h.store.GetDreadLevel(r.Context(), areaID)
	if err != nil {
		slog.Error("api: get dread level failed", "area", areaID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "could not read dread level")
		return
	}

	jsonResp(w, http.StatusOK, DreadAreaResponse{AreaID: areaID, DreadLevel: level})
}

// listElevated handles GET /api/v1/dread: all areas with a non-zero level,
// highest first.
func (h *Handler) listElevated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	out, err := BuildElevated(r.Context(), h.store)
	if err != nil {
		slog.Error("api: list elevated areas failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "could not list elevated areas")
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// BuildElevated returns the elevated-areas payload, highest level first.
// Shared with the WebSocket hub, which pushes the same shape on every tick.
func BuildElevated(ctx context.Context, st *store.Store) ([]DreadAreaResponse, error) {
	levels, err := st.ListElevatedDreadLevels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DreadAreaResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, DreadAreaResponse{AreaID: l.AreaID, DreadLevel: l.Level})
	}
	return out, nil
}

// health handles GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	counts, err := h.store.ListDeathCounts(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	elevated, err := h.store.ListElevatedDreadLevels(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	jsonResp(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		AreasTracked:  len(counts),
		ElevatedCount: len(elevated),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
