// Package web serves the management dashboard page and streams screen frames over SSE.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/walletboard/internal/dashboard"
	"github.com/vadiminshakov/walletboard/internal/domain"
)

const (
	// ManagementPath is where the dashboard is mounted.
	ManagementPath = "/management"

	heartbeatInterval = 20 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type screenFactory interface {
	NewScreen() *dashboard.Screen
}

type totalsHistoryReader interface {
	TotalsAfter(index uint64) ([]domain.DepositTotalsRecord, error)
}

// Server exposes the dashboard page, its SSE stream, deposit totals history and metrics.
type Server struct {
	Addr     string
	Screens  screenFactory
	History  totalsHistoryReader
	Gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewServer creates a new web server instance. history and gatherer may be nil.
func NewServer(logger *zap.Logger, addr string, screens screenFactory, history totalsHistoryReader, gatherer prometheus.Gatherer) *Server {
	return &Server{
		Addr:     addr,
		Screens:  screens,
		History:  history,
		Gatherer: gatherer,
		logger:   logger.Named("web"),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ManagementPath, s.handleIndex)
	mux.HandleFunc(ManagementPath+"/stream", s.handleStream)
	mux.HandleFunc(ManagementPath+"/totals", s.handleTotals)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, ManagementPath, http.StatusFound)
	})
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("serving dashboard", zap.String("addr", s.Addr), zap.String("path", ManagementPath))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http (acme) server error", zap.Error(err))
		}
	}()

	s.logger.Info("serving dashboard with automatic TLS", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ok")
}

// handleStream opens one screen for the lifetime of the connection and streams its frames.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Screens == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "dashboard not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	screen := s.Screens.NewScreen()
	if err := screen.Open(r.Context()); err != nil {
		s.logger.Error("failed to open screen", zap.Error(err))
		http.Error(w, "failed to open dashboard", http.StatusInternalServerError)
		return
	}
	defer screen.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// send a comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	frames := screen.Frames()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case frame, ok := <-frames:
			if !ok {
				return
			}
			payload, err := json.Marshal(frame.Payload)
			if err != nil {
				s.logger.Error("failed to encode frame", zap.String("kind", string(frame.Kind)), zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\n", frame.Kind)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

type totalsRecord struct {
	Index  uint64               `json:"index"`
	Totals domain.DepositTotals `json:"totals"`
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "totals history not available")
		return
	}

	after := parseIndex(r.URL.Query().Get("after"))
	records, err := s.History.TotalsAfter(after)
	if err != nil {
		s.logger.Error("failed to load totals history", zap.Error(err))
		http.Error(w, "failed to load totals history", http.StatusInternalServerError)
		return
	}

	out := make([]totalsRecord, len(records))
	for i, rec := range records {
		out[i] = totalsRecord{Index: rec.Index, Totals: rec.Totals}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Error("failed to write totals history", zap.Error(err))
	}
}

// parseIndex parses a WAL index query parameter, treating anything invalid as 0.
func parseIndex(val string) uint64 {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Management</title>
  <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
  <link rel="preconnect" href="https://fonts.googleapis.com">
  <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
  <link href="https://fonts.googleapis.com/css2?family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root {
      --bg:#ffffff;
      --ink:#111111;
      --ink-mid:#4d4d4d;
      --ink-soft:#9c9c9c;
      --panel:#f6f6f6;
      --grid:rgba(0,0,0,0.1);
    }
    * { box-sizing:border-box; }
    body {
      margin:0;
      min-height:100vh;
      background:var(--bg);
      color:var(--ink);
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    #split {
      display:flex;
      width:100%;
      height:100vh;
    }
    .pane {
      padding:1.5rem;
      overflow:auto;
      border-right:1px solid var(--grid);
    }
    .pane:last-child { border-right:none; }
    .card {
      background:var(--panel);
      border:2px solid var(--ink);
      padding:1rem;
      margin-bottom:1.5rem;
      height:320px;
    }
    .card.tall { height:calc(100vh - 3rem); }
    #status {
      position:fixed;
      right:1rem;
      bottom:1rem;
      font-size:.75rem;
      color:var(--ink-soft);
    }
  </style>
</head>
<body>
  <div id="split">
    <div class="pane" id="left"></div>
    <div class="pane" id="right"></div>
  </div>
  <div id="status">connecting</div>
  <script>
    const charts = {};
    const palette = ['#111111', '#4d4d4d', '#9c9c9c', '#2f6fdf', '#d94f4f'];

    function card(parent, id, tall) {
      const box = document.createElement('div');
      box.className = tall ? 'card tall' : 'card';
      const canvas = document.createElement('canvas');
      canvas.id = id;
      box.appendChild(canvas);
      parent.appendChild(box);
      return canvas;
    }

    function axisTitle(axis) {
      return axis && axis.title ? { display:true, text:axis.title } : { display:false };
    }

    function buildSpline(cfg) {
      const canvas = card(document.getElementById('left'), cfg.id, false);
      charts[cfg.id] = new Chart(canvas, {
        type:'line',
        data:{ labels:[], datasets:[
          { label:cfg.series[0], data:[], borderColor:palette[0], tension:0.4, pointRadius:2 },
          { label:'trend', data:[], borderColor:palette[2], borderDash:[4,4], pointRadius:0, tension:0.4 },
        ]},
        options:{
          animation:false,
          maintainAspectRatio:false,
          plugins:{
            title:{ display:true, text:cfg.title },
            legend:{ display:!!(cfg.legend && cfg.legend.enabled) },
            tooltip:{ enabled:!!cfg.tooltip },
          },
          scales:{
            x:{ title:axisTitle(cfg.x_axis) },
            y:{ title:axisTitle(cfg.y_axis), min:cfg.y_axis ? cfg.y_axis.min : undefined },
          },
        },
      });
    }

    function buildBar(cfg) {
      const canvas = card(document.getElementById('right'), cfg.id, true);
      const stacked = cfg.stacking === 'normal';
      charts[cfg.id] = new Chart(canvas, {
        type:'bar',
        data:{
          labels:cfg.x_axis.categories || [],
          datasets:cfg.series.map((name, i) => ({ label:name, data:[], backgroundColor:palette[i + 1] })),
        },
        options:{
          indexAxis:'y',
          animation:false,
          maintainAspectRatio:false,
          plugins:{
            title:{ display:true, text:cfg.title },
            legend:{ display:!!(cfg.legend && cfg.legend.enabled), reverse:!!(cfg.legend && cfg.legend.reversed) },
          },
          scales:{
            x:{ stacked:stacked, title:axisTitle(cfg.y_axis), min:cfg.y_axis ? cfg.y_axis.min : undefined },
            y:{ stacked:stacked, title:axisTitle(cfg.x_axis) },
          },
        },
      });
    }

    function onLayout(p) {
      document.getElementById('left').style.width = p.split_position + '%';
      document.getElementById('right').style.width = (100 - p.split_position) + '%';
      document.getElementById('left').innerHTML = '';
      document.getElementById('right').innerHTML = '';
      for (const id in charts) { charts[id].destroy(); delete charts[id]; }
      (p.totals || []).forEach(buildSpline);
      buildBar(p.top_wallets);
    }

    function onTotalsPoint(p) {
      const chart = charts[p.chart_id];
      if (!chart) return;
      const label = new Date(p.point.x).toLocaleTimeString();
      chart.data.labels.push(label);
      chart.data.datasets[0].data.push(Number(p.point.y));
      chart.data.datasets[1].data.push(p.trend != null ? Number(p.trend) : null);
      if (p.shift) {
        chart.data.labels.shift();
        chart.data.datasets.forEach(ds => ds.data.shift());
      }
      chart.update('none');
    }

    function topChart() {
      return charts['top-wallets'];
    }

    function onTopMembers(p) {
      const chart = topChart();
      if (!chart) return;
      chart.data.labels = p.categories;
      chart.data.datasets[0].data = p.available.map(Number);
      chart.data.datasets[1].data = p.betted.map(Number);
      chart.data.datasets[2].data = p.withdrawing.map(Number);
      chart.update('none');
    }

    function onTopValue(p) {
      const chart = topChart();
      if (!chart || p.position >= chart.data.labels.length) return;
      chart.data.datasets[0].data[p.position] = Number(p.available);
      chart.data.datasets[1].data[p.position] = Number(p.betted);
      chart.data.datasets[2].data[p.position] = Number(p.withdrawing);
      chart.update('none');
    }

    function connect() {
      const status = document.getElementById('status');
      const es = new EventSource('/management/stream');
      es.onopen = () => { status.textContent = 'live'; };
      es.onerror = () => { status.textContent = 'reconnecting'; };
      es.addEventListener('layout', e => onLayout(JSON.parse(e.data)));
      es.addEventListener('totals_point', e => onTotalsPoint(JSON.parse(e.data)));
      es.addEventListener('top_members', e => onTopMembers(JSON.parse(e.data)));
      es.addEventListener('top_value', e => onTopValue(JSON.parse(e.data)));
    }

    connect();
  </script>
</body>
</html>`
