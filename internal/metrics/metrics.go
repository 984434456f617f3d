package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Gate metrics
	GateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorgate_gate_decisions_total",
			Help: "Entry window decisions by reason",
		},
		[]string{"reason"},
	)

	// Ledger metrics
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorgate_attempts_total",
			Help: "Attempt quota checks by result",
		},
		[]string{"result"},
	)

	LedgerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorgate_ledger_errors_total",
			Help: "Recovered attempt ledger errors by operation",
		},
		[]string{"op"},
	)

	// Session metrics
	FocusSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorgate_focus_samples_total",
			Help: "Focus samples taken by result",
		},
		[]string{"result"},
	)

	SessionsTerminatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorgate_sessions_terminated_total",
			Help: "Supervised sessions terminated by reason",
		},
		[]string{"reason"},
	)

	SessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proctorgate_session_duration_seconds",
			Help:    "Time from launch to termination of a supervised session",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctorgate_session_active",
			Help: "1 while a supervised session is active",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		GateDecisionsTotal,
		AttemptsTotal,
		LedgerErrorsTotal,
		FocusSamplesTotal,
		SessionsTerminatedTotal,
		SessionDuration,
		SessionActive,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Addr returns the bound address once Start has returned, or the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Start binds the listener and serves in the background. Binding happens
// synchronously so port conflicts are reported to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.logger.Info().Str("addr", s.Addr()).Msg("Starting metrics server")
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
