package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/fetcher"
	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/monitoring"
	"github.com/sells-group/qbank-cli/internal/store"
)

const maxUploadBytes = 64 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the import API and consistency monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(env.Store)
		monitor := monitoring.NewMonitor(
			monitoring.NewCollector(env.Store),
			checker,
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go monitor.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, checker),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type apiServer struct {
	env     *pipelineEnv
	checker *monitoring.Checker
	loader  *sourceLoader
}

func newRouter(env *pipelineEnv, checker *monitoring.Checker) http.Handler {
	s := &apiServer{env: env, checker: checker, loader: newSourceLoader(false)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.importDocument)
		r.Post("/documents/{id}/audit", s.auditDocument)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/consistency", s.consistency)
	})
	return r
}

func (s *apiServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type importRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
	URL      string `json:"url"`
}

// importDocument accepts a multipart "file" upload, a JSON text body, or a
// JSON url to download, and imports it synchronously. Zip uploads expand
// into one document per entry.
func (s *apiServer) importDocument(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sourcesFromRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(sources) == 0 {
		writeError(w, http.StatusBadRequest, "no importable documents in request")
		return
	}

	sum, err := s.env.Runner.Import(r.Context(), sources)
	if err != nil {
		zap.L().Error("api: import failed", zap.Int("documents", len(sources)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *apiServer) sourcesFromRequest(w http.ResponseWriter, r *http.Request) ([]model.Source, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, eris.New("multipart body needs a file field")
		}
		defer file.Close() //nolint:errcheck
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, eris.Wrap(err, "read upload")
		}
		return s.loader.fromBytes(filepath.Base(header.Filename), "", data)
	}

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, eris.New("invalid request body")
	}
	if req.URL != "" {
		if !fetcher.IsRemote(req.URL) {
			return nil, eris.New("url must be http, https or ftp")
		}
		return s.loader.load(r.Context(), req.URL)
	}
	if req.Filename == "" {
		return nil, eris.New("filename is required")
	}
	if req.Text == "" {
		return nil, eris.New("text is required")
	}
	return []model.Source{{Filename: filepath.Base(req.Filename), Text: req.Text}}, nil
}

func (s *apiServer) auditDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.env.Store.GetDocument(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	sum, err := s.env.Runner.Audit(r.Context(), []string{id})
	if err != nil {
		zap.L().Error("api: audit failed", zap.String("document_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "audit failed")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *apiServer) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Kind:   model.RunKind(q.Get("kind")),
		Limit:  20,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	runs, err := s.env.Store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *apiServer) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *apiServer) consistency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.checker.Check(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
