package api

import (
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/dreadwatch/dreadwatch/internal/store"
)

// MetricsHandler serves GET /metrics: the current death counters and dread
// levels in Prometheus text exposition format, one gauge per area.
func MetricsHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		counts, err := st.ListDeathCounts(r.Context())
		if err != nil {
			slog.Error("api: metrics read failed", "err", err)
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}
		levels, err := st.ListDreadLevels(r.Context())
		if err != nil {
			slog.Error("api: metrics read failed", "err", err)
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}

		deaths := &dto.MetricFamily{
			Name: proto.String("dreadwatch_area_deaths"),
			Help: proto.String("Decayed death count per area."),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		for _, c := range counts {
			deaths.Metric = append(deaths.Metric, areaGauge(c.AreaID, c.DeathCount))
		}

		dreadLevels := &dto.MetricFamily{
			Name: proto.String("dreadwatch_area_dread_level"),
			Help: proto.String("Current dread level per area (0, 1, or 2)."),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		for _, l := range levels {
			dreadLevels.Metric = append(dreadLevels.Metric, areaGauge(l.AreaID, float64(l.Level)))
		}

		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range []*dto.MetricFamily{deaths, dreadLevels} {
			if len(mf.Metric) == 0 {
				continue
			}
			if err := enc.Encode(mf); err != nil {
				slog.Error("api: metrics encode failed", "err", err)
				return
			}
		}
	})
}

func areaGauge(areaID string, value float64) *dto.Metric {
	return &dto.Metric{
		Label: []*dto.LabelPair{{
			Name:  proto.String("area_id"),
			Value: proto.String(areaID),
		}},
		Gauge: &dto.Gauge{Value: proto.Float64(value)},
	}
}
