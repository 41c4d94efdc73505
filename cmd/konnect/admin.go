package main

import (
	"net/http"

	"github.com/cyberinferno/konnect/connection"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// connectionLister is the part of the server the admin endpoints read.
type connectionLister interface {
	Connections() []*connection.Handle
	Running() bool
}

type connectionView struct {
	ID         uint32 `json:"id"`
	Session    string `json:"session"`
	RemoteAddr string `json:"remote_addr"`
	LocalAddr  string `json:"local_addr"`
	State      string `json:"state"`
	Greeting   string `json:"greeting,omitempty"`
}

// adminRouter serves /metrics, /connections and /healthz.
func adminRouter(srv connectionLister, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/connections", func(w http.ResponseWriter, _ *http.Request) {
		conns := srv.Connections()
		views := make([]connectionView, 0, len(conns))
		for _, h := range conns {
			views = append(views, connectionView{
				ID:         h.ID(),
				Session:    h.SessionID(),
				RemoteAddr: h.RemoteAddr().String(),
				LocalAddr:  h.LocalAddr().String(),
				State:      h.State().String(),
				Greeting:   h.PeerGreeting(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !srv.Running() {
			http.Error(w, "not running", http.StatusServiceUnavailable)
			return
		}

		_, _ = w.Write([]byte("ok"))
	})

	return r
}
