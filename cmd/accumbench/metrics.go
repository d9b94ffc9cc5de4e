package main

import (
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	ver "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/llxisdsh/accum/promaccum"
)

const metricsPath = "/metrics"

type metrics struct {
	reg       *prometheus.Registry
	collector *promaccum.Collector
	ops       *promaccum.Counter
	scenarios *promaccum.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		reg:       prometheus.NewRegistry(),
		collector: promaccum.NewCollector(),
		ops: promaccum.NewCounter(prometheus.CounterOpts{
			Namespace: appName,
			Name:      "operations_total",
			Help:      "Accumulator operations applied by all workers.",
		}),
		scenarios: promaccum.NewCounter(prometheus.CounterOpts{
			Namespace: appName,
			Name:      "scenarios_passed_total",
			Help:      "Scenarios whose result matched the expected value.",
		}),
	}
	m.reg.MustRegister(
		m.collector,
		m.ops,
		m.scenarios,
		ver.NewCollector(appName),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) router() *mux.Router {
	router := mux.NewRouter()
	router.Handle(metricsPath, promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

// serveMetrics starts serving h on addr in the background. The listener
// is bound before returning so that address errors surface immediately.
func serveMetrics(addr string, h http.Handler) (*http.Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}
	server := &http.Server{
		Addr:    l.Addr().String(),
		Handler: h,
	}
	go func() {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", server.Addr).Str("path", metricsPath).Msg("serving metrics")
	return server, nil
}
