package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-dashboard/internal/fetcher"
	"github.com/sells-group/risk-dashboard/internal/model"
	"github.com/sells-group/risk-dashboard/internal/pipeline"
	"github.com/sells-group/risk-dashboard/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve dashboard data over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		api := &dashboardAPI{pipe: env.Pipeline, store: env.Store}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// dashboardAPI serves the unified table and its aggregates.
type dashboardAPI struct {
	pipe  *pipeline.Pipeline
	store store.Store
}

func (a *dashboardAPI) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/evaluations", a.evaluations)
		r.Get("/summary", a.summary)
		r.Get("/trend", a.trend)
		r.Get("/analysts", a.analysts)
		r.Get("/freshness", a.freshness)
		r.Get("/handoff", a.handoff)
		r.Post("/refresh", a.refresh)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// loadError maps a load failure to a status code. Schema violations mean
// the upstream data contract broke.
func loadError(w http.ResponseWriter, err error) {
	var se *fetcher.SchemaError
	if errors.As(err, &se) {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	zap.L().Error("load failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err)
}

func queryFromRequest(r *http.Request) (tableQuery, error) {
	v := r.URL.Query()
	analysts, err := parseBool(v.Get("analysts"))
	if err != nil {
		return tableQuery{}, err
	}
	latest, err := parseBool(v.Get("latest"))
	if err != nil {
		return tableQuery{}, err
	}
	omit, err := parseBool(v.Get("omit_pending"))
	if err != nil {
		return tableQuery{}, err
	}
	return newTableQuery(analysts, latest, v.Get("from"), v.Get("to"), omit)
}

// load parses the request, runs the load and writes any error. ok is false
// when a response has already been written.
func (a *dashboardAPI) load(w http.ResponseWriter, r *http.Request, command string, mutate func(*tableQuery)) (*pipeline.Result, bool) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	if mutate != nil {
		mutate(&q)
	}
	res, err := loadTable(r.Context(), a.pipe, a.store, command, q)
	if err != nil {
		loadError(w, err)
		return nil, false
	}
	return res, true
}

func (a *dashboardAPI) evaluations(w http.ResponseWriter, r *http.Request) {
	res, ok := a.load(w, r, "api:evaluations", nil)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *dashboardAPI) summary(w http.ResponseWriter, r *http.Request) {
	gran := r.URL.Query().Get("granularity")
	if gran == "" {
		gran = string(pipeline.GranularityMonth)
	}
	g, err := pipeline.ParseGranularity(gran)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, ok := a.load(w, r, "api:summary", nil)
	if !ok {
		return
	}
	periods, err := pipeline.PartitionByPeriod(res.Records, g, a.pipe.Location())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status      model.LoadStatus         `json:"status"`
		Granularity pipeline.Granularity     `json:"granularity"`
		Periods     []pipeline.PeriodSummary `json:"periods"`
	}{res.Status, g, periods})
}

func (a *dashboardAPI) trend(w http.ResponseWriter, r *http.Request) {
	res, ok := a.load(w, r, "api:trend", nil)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status model.LoadStatus     `json:"status"`
		Trend  pipeline.TrendSeries `json:"trend"`
	}{res.Status, pipeline.DailyTrend(res.Records, a.pipe.Location())})
}

func (a *dashboardAPI) analysts(w http.ResponseWriter, r *http.Request) {
	res, ok := a.load(w, r, "api:analysts", func(q *tableQuery) { q.Load.IncludeAnalysts = true })
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status   model.LoadStatus        `json:"status"`
		Analysts []pipeline.AnalystCount `json:"analysts"`
	}{res.Status, pipeline.CountByAnalyst(res.Records)})
}

func (a *dashboardAPI) freshness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, checkFreshness(r.Context(), a.pipe.Resolver(), a.pipe.Now()))
}

func (a *dashboardAPI) handoff(w http.ResponseWriter, r *http.Request) {
	rep, err := a.pipe.FetchHandoff(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		loadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// refresh drops cached loads; the next request refetches.
func (a *dashboardAPI) refresh(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.Invalidate(r.Context(), pipeline.CachePrefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	zap.L().Info("cache invalidated", zap.Int("entries", n))
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
