// Package metrics exposes daemon counters in the Prometheus format.
//
// Each [Metrics] owns its registry so tests and multiple daemons in one
// process do not collide on the global default registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "editorcord"

// ///////////////////////////////////////////////
// Metrics
// ///////////////////////////////////////////////

// Metrics holds the daemon's collectors.
type Metrics struct {
	reg *prometheus.Registry

	// Published counts payloads sent to Discord, by editor.
	Published *prometheus.CounterVec
	// Suppressed counts payloads skipped because they matched the last one sent.
	Suppressed prometheus.Counter
	// Cleared counts presence clears (idle, ignored paths, editor stopped).
	Cleared *prometheus.CounterVec
	// RenderFailures counts template substitutions that fell back to the raw template.
	RenderFailures prometheus.Counter
	// Connected is 1 while a Discord IPC connection is open.
	Connected prometheus.Gauge
	// Reconnects counts Discord connection attempts after a lost connection.
	Reconnects prometheus.Counter
	// IconRefreshes counts scheduled icon table refreshes, by result.
	IconRefreshes *prometheus.CounterVec
	// LastPublish is the Unix time of the most recent published payload.
	LastPublish prometheus.Gauge
}

// New creates a Metrics with its collectors registered, including the
// standard Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_published_total",
			Help:      "Presence payloads sent to Discord.",
		}, []string{"editor"}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_suppressed_total",
			Help:      "Presence payloads skipped as duplicates of the last one sent.",
		}),
		Cleared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_cleared_total",
			Help:      "Presence clears, by reason.",
		}, []string{"reason"}),
		RenderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Template substitutions that fell back to the raw template.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discord_connected",
			Help:      "1 while connected to the Discord IPC socket.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discord_reconnects_total",
			Help:      "Reconnection attempts after a lost Discord connection.",
		}),
		IconRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "icon_refreshes_total",
			Help:      "Scheduled icon table refreshes, by result.",
		}, []string{"result"}),
		LastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_publish_timestamp_seconds",
			Help:      "Unix time of the most recent published payload.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Published, m.Suppressed, m.Cleared, m.RenderFailures,
		m.Connected, m.Reconnects, m.IconRefreshes, m.LastPublish,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordPublish counts a payload sent for editor at t.
func (m *Metrics) RecordPublish(editor string, t time.Time) {
	m.Published.WithLabelValues(editor).Inc()
	m.LastPublish.Set(float64(t.Unix()))
}

// SetConnected updates the connection gauge.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

// ///////////////////////////////////////////////
// Server
// ///////////////////////////////////////////////

// Serve listens on addr and serves /metrics until ctx is canceled.
// A bad address is reported before serving starts.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return m.serve(ctx, ln)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
