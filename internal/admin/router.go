// Package admin serves the optional operator HTTP endpoint: liveness,
// Prometheus metrics, and read-only views of the session registry.
package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reposerve/internal/identity"
	"reposerve/internal/metrics"
	"reposerve/internal/session"
	"reposerve/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionView is the JSON form of a session.
type SessionView struct {
	ID             uint64 `json:"id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	Connected      bool   `json:"connected"`
	ConnectedAt    string `json:"connected_at"`
	DisconnectedAt string `json:"disconnected_at,omitempty"`
}

func viewOf(s session.Session) SessionView {
	v := SessionView{
		ID:          uint64(s.ID),
		Name:        s.Name,
		Address:     s.Addr,
		Connected:   s.Connected(),
		ConnectedAt: s.ConnectedAt.Format(time.RFC3339Nano),
	}
	if !s.Connected() {
		v.DisconnectedAt = s.DisconnectedAt.Format(time.RFC3339Nano)
	}
	return v
}

// NewRouter builds the admin routes:
//
//	GET /healthz         liveness
//	GET /metrics         Prometheus exposition from gatherer
//	GET /status          the same text report the `status` command sends
//	GET /sessions        every session as JSON, ascending identity
//	GET /sessions/{id}   one session
//	GET /stats           collector snapshot as JSON
func NewRouter(reg *session.Registry, m *metrics.Collector, gatherer prometheus.Gatherer, logger *util.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n")) //nolint:errcheck
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(reg.StatusReport())) //nolint:errcheck
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, m.Snapshot())
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			snap := reg.Snapshot()
			out := make([]SessionView, 0, len(snap))
			for _, s := range snap {
				out = append(out, viewOf(s))
			}
			writeJSON(w, http.StatusOK, out)
		})
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, err := identity.Parse(chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			s, err := reg.Lookup(id)
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
				return
			}
			writeJSON(w, http.StatusOK, viewOf(s))
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// requestLogger logs each request at verbose level.
func requestLogger(logger *util.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Verbose("admin %s %s -> %d in %s (req %s)",
				r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
		})
	}
}
