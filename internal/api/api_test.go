package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"

	"github.com/dreadwatch/dreadwatch/internal/api"
	"github.com/dreadwatch/dreadwatch/internal/dread"
	"github.com/dreadwatch/dreadwatch/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "dread.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- tests ------------------------------------------------------------------

func TestPostDeath(t *testing.T) {
	h := api.New(newStore(t), nil)

	rr := post(t, h, "/api/v1/deaths", `{"area_id": "castle"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	var resp api.DeathResponse
	decode(t, rr, &resp)
	if resp.AreaID != "castle" || resp.DeathCount != 1 {
		t.Errorf("response: got %+v", resp)
	}

	rr = post(t, h, "/api/v1/deaths", `{"area_id": "castle"}`)
	decode(t, rr, &resp)
	if resp.DeathCount != 2 {
		t.Errorf("second death: got count %v, want 2", resp.DeathCount)
	}
}

func TestPostDeath_BadRequests(t *testing.T) {
	h := api.New(newStore(t), nil)

	if rr := post(t, h, "/api/v1/deaths", `{}`); rr.Code != http.StatusBadRequest {
		t.Errorf("missing area_id: got %d, want 400", rr.Code)
	}
	if rr := post(t, h, "/api/v1/deaths", `not json`); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid body: got %d, want 400", rr.Code)
	}
	if rr := get(t, h, "/api/v1/deaths"); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET deaths: got %d, want 405", rr.Code)
	}
}

func TestGetDread_UnknownAreaIsZero(t *testing.T) {
	h := api.New(newStore(t), nil)

	rr := get(t, h, "/api/v1/dread/nowhere")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var resp api.DreadAreaResponse
	decode(t, rr, &resp)
	if resp.AreaID != "nowhere" || resp.DreadLevel != 0 {
		t.Errorf("response: got %+v", resp)
	}
}

func TestGetDread_Ranked(t *testing.T) {
	st := newStore(t)
	if err := st.ApplyRanking(context.Background(), []dread.LevelAssignment{
		{AreaID: "castle", Level: dread.LevelSevere},
	}); err != nil {
		t.Fatalf("seed ranking: %v", err)
	}
	h := api.New(st, nil)

	var resp api.DreadAreaResponse
	decode(t, get(t, h, "/api/v1/dread/castle"), &resp)
	if resp.DreadLevel != 2 {
		t.Errorf("level: got %d, want 2", resp.DreadLevel)
	}
}

func TestListElevated(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	if err := st.ApplyRanking(ctx, []dread.LevelAssignment{
		{AreaID: "swamp", Level: dread.LevelHigh},
		{AreaID: "castle", Level: dread.LevelSevere},
	}); err != nil {
		t.Fatalf("seed ranking: %v", err)
	}
	h := api.New(st, nil)

	rr := get(t, h, "/api/v1/dread")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var resp []api.DreadAreaResponse
	decode(t, rr, &resp)
	if len(resp) != 2 {
		t.Fatalf("elevated: got %d entries, want 2", len(resp))
	}
	if resp[0].AreaID != "castle" || resp[0].DreadLevel != 2 {
		t.Errorf("resp[0]: got %+v", resp[0])
	}
	if resp[1].AreaID != "swamp" || resp[1].DreadLevel != 1 {
		t.Errorf("resp[1]: got %+v", resp[1])
	}
}

func TestListElevated_Empty(t *testing.T) {
	h := api.New(newStore(t), nil)

	rr := get(t, h, "/api/v1/dread")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []api.DreadAreaResponse
	decode(t, rr, &resp)
	if len(resp) != 0 {
		t.Errorf("elevated: got %v, want empty list", resp)
	}
}

func TestHealth(t *testing.T) {
	st := newStore(t)
	h := api.New(st, nil)

	post(t, h, "/api/v1/deaths", `{"area_id": "castle"}`)

	rr := get(t, h, "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.AreasTracked != 1 {
		t.Errorf("health: got %+v", resp)
	}
}

func TestProtectWrapsDeathsOnly(t *testing.T) {
	denied := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	h := api.New(newStore(t), denied)

	if rr := post(t, h, "/api/v1/deaths", `{"area_id":"castle"}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("deaths: got %d, want 401", rr.Code)
	}
	// Public reads stay open.
	if rr := get(t, h, "/api/v1/dread"); rr.Code != http.StatusOK {
		t.Errorf("dread list: got %d, want 200", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	st := newStore(t)
	h := api.New(st, nil)
	post(t, h, "/api/v1/deaths", `{"area_id": "castle"}`)

	ctx := context.Background()
	if err := st.ApplyRanking(ctx, []dread.LevelAssignment{{AreaID: "castle", Level: 2}}); err != nil {
		t.Fatalf("seed ranking: %v", err)
	}

	rr := get(t, api.MetricsHandler(st), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	// The output must be parseable exposition text with both families.
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(rr.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}
	deaths, ok := mfs["dreadwatch_area_deaths"]
	if !ok {
		t.Fatal("dreadwatch_area_deaths family missing")
	}
	if got := deaths.Metric[0].Gauge.GetValue(); got != 1 {
		t.Errorf("deaths gauge: got %v, want 1", got)
	}
	levels, ok := mfs["dreadwatch_area_dread_level"]
	if !ok {
		t.Fatal("dreadwatch_area_dread_level family missing")
	}
	if got := levels.Metric[0].Gauge.GetValue(); got != 2 {
		t.Errorf("level gauge: got %v, want 2", got)
	}
}
