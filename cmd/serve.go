package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/payee-cli/internal/dedupe"
	"github.com/sells-group/payee-cli/internal/fetcher"
	"github.com/sells-group/payee-cli/internal/pipeline"
	"github.com/sells-group/payee-cli/internal/stats"
	"github.com/sells-group/payee-cli/internal/store"
)

var servePort int

// serveEnv bundles the dependencies the HTTP handlers need.
type serveEnv struct {
	pipeline *pipeline.Pipeline
	engine   *dedupe.Engine
	store    store.Store
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server for classification requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		engine, err := newEngine()
		if err != nil {
			return err
		}

		env := &serveEnv{
			pipeline: pipeline.New(engine, newClassifier(), st, pipeline.Options{
				Concurrency: cfg.Pipeline.Concurrency,
				UseBatchAPI: cfg.Anthropic.UseBatchAPI,
			}),
			engine: engine,
			store:  st,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *serveEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/classify", env.handleClassify)
	r.Post("/dedupe", env.handleDedupe)
	r.Get("/jobs/{id}", env.handleGetJob)
	r.Get("/stats", env.handleStats)

	return r
}

type namesRequest struct {
	Names []string `json:"names"`
}

func decodeNames(w http.ResponseWriter, req *http.Request) ([]string, bool) {
	var body namesRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if len(body.Names) == 0 {
		writeError(w, http.StatusBadRequest, "names is required")
		return nil, false
	}
	return body.Names, true
}

func (env *serveEnv) handleClassify(w http.ResponseWriter, req *http.Request) {
	names, ok := decodeNames(w, req)
	if !ok {
		return
	}

	result, err := env.pipeline.Run(req.Context(), datasetFromNames(names))
	if err != nil && result == nil {
		zap.L().Error("classify request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "classification failed")
		return
	}
	if err != nil {
		zap.L().Warn("classify request persisted partially", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, struct {
		Job     any `json:"job,omitempty"`
		Results any `json:"results"`
		Groups  any `json:"groups,omitempty"`
		Failed  int `json:"failed"`
	}{result.Job, result.Results, result.Groups, result.Failed})
}

func (env *serveEnv) handleDedupe(w http.ResponseWriter, req *http.Request) {
	names, ok := decodeNames(w, req)
	if !ok {
		return
	}

	groups, err := env.engine.DeduplicateNames(req.Context(), env.store, names)
	if err != nil {
		zap.L().Warn("dedupe request persisted partially", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (env *serveEnv) handleGetJob(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	job, err := env.store.GetBatchJob(req.Context(), id)
	if err != nil {
		zap.L().Error("get job failed", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (env *serveEnv) handleStats(w http.ResponseWriter, req *http.Request) {
	lookback := 0
	if v := req.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		lookback = n
	}

	snap, err := stats.NewCollector(env.store).Collect(req.Context(), lookback)
	if err != nil {
		zap.L().Error("stats collection failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats collection failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// datasetFromNames wraps ad-hoc request names in a single-column dataset so
// they flow through the same pipeline as file input.
func datasetFromNames(names []string) *fetcher.Dataset {
	ds := &fetcher.Dataset{
		Source:      "api",
		Headers:     []string{"Payee Name"},
		PayeeColumn: 0,
	}
	for i, name := range names {
		ds.Records = append(ds.Records, fetcher.Record{
			Index: i,
			Name:  name,
			Fields: map[string]string{
				"Payee Name": name,
			},
		})
	}
	return ds
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
