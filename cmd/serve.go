package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/icp-qualifier/internal/model"
	"github.com/sells-group/icp-qualifier/internal/pipeline"
	"github.com/sells-group/icp-qualifier/internal/profile"
	"github.com/sells-group/icp-qualifier/internal/table"
)

var servePort int

// job tracks one asynchronous qualification run submitted over the API.
type job struct {
	mu         sync.Mutex
	ID         string
	State      string // "running", "done", "error"
	Done       int
	Total      int
	Message    string
	Stats      *model.StatsSnapshot
	OutputFile string
	Err        string
}

func (j *job) snapshot() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := map[string]any{
		"id":      j.ID,
		"state":   j.State,
		"done":    j.Done,
		"total":   j.Total,
		"message": j.Message,
	}
	if j.Stats != nil {
		out["stats"] = *j.Stats
	}
	if j.Err != "" {
		out["error"] = j.Err
	}
	return out
}

type jobStore struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: map[string]*job{}}
}

func (s *jobStore) add(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

func (s *jobStore) get(id string) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// qualifyRequest is the POST /api/qualify body: either a bare list of
// websites or explicit name/website rows.
type qualifyRequest struct {
	Profile        string       `json:"profile"`
	UseScreenshots bool         `json:"use_screenshots"`
	Websites       []string     `json:"websites"`
	Rows           []qualifyRow `json:"rows"`
}

type qualifyRow struct {
	CompanyName string `json:"company_name"`
	Website     string `json:"website"`
}

func (q qualifyRequest) validate() error {
	if len(q.Websites) == 0 && len(q.Rows) == 0 {
		return eris.New("websites or rows is required")
	}
	return nil
}

func (q qualifyRequest) table() *table.Table {
	if len(q.Rows) > 0 {
		companies := make([]table.Company, len(q.Rows))
		for i, r := range q.Rows {
			companies[i] = table.Company{Name: r.CompanyName, Website: r.Website}
		}
		return table.FromCompanies(companies)
	}
	return table.FromWebsites(q.Websites)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	Long:  "Serves an HTTP API for submitting qualification jobs and polling their progress, backing an interactive dashboard.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Jobs may request screenshots at any time, so the browser is part
		// of the server's fixed setup.
		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Pipeline.ProfilesFile != "" {
			if err := profile.LoadCustomProfiles(cfg.Pipeline.ProfilesFile); err != nil {
				return err
			}
		}

		store := newJobStore()

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/api/profiles", func(w http.ResponseWriter, _ *http.Request) {
			var out []map[string]any
			for _, name := range profile.Names() {
				p, err := profile.Get(name)
				if err != nil {
					continue
				}
				out = append(out, map[string]any{
					"name":          p.Name,
					"qualify_key":   p.QualifyKey,
					"qualify_label": p.QualifyLabel,
					"has_style":     p.HasStyle,
				})
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Post("/api/qualify", func(w http.ResponseWriter, req *http.Request) {
			var body qualifyRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if err := body.validate(); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			if body.Profile == "" {
				body.Profile = cfg.Pipeline.Profile
			}
			prof, err := profile.Get(body.Profile)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}

			j := &job{
				ID:         uuid.NewString(),
				State:      "running",
				OutputFile: filepath.Join(os.TempDir(), "icp-job-"+uuid.NewString()+".csv"),
			}
			store.add(j)

			tbl := body.table()
			p := pipeline.New(env.Fetcher, env.Renderer, env.Classifier, pipeline.Options{
				Profile:        prof,
				Workers:        cfg.Pipeline.Workers,
				UseScreenshots: body.UseScreenshots,
				RenderFallback: cfg.Pipeline.RenderFallback,
				OutputFile:     j.OutputFile,
				GCEvery:        cfg.Pipeline.GCEvery,
				Progress: func(done, total int, message string) {
					j.mu.Lock()
					j.Done, j.Total, j.Message = done, total, message
					j.mu.Unlock()
				},
			})

			go func() {
				snap, err := p.Run(ctx, tbl, nil)
				j.mu.Lock()
				defer j.mu.Unlock()
				j.Stats = &snap
				if err != nil {
					j.State = "error"
					j.Err = err.Error()
					zap.L().Error("serve: job failed",
						zap.String("job_id", j.ID),
						zap.Error(err),
					)
					return
				}
				j.State = "done"
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{"job_id": j.ID})
		})

		r.Get("/api/jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
			j, ok := store.get(chi.URLParam(req, "id"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
				return
			}
			writeJSON(w, http.StatusOK, j.snapshot())
		})

		r.Get("/api/jobs/{id}/result", func(w http.ResponseWriter, req *http.Request) {
			j, ok := store.get(chi.URLParam(req, "id"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
				return
			}
			j.mu.Lock()
			path := j.OutputFile
			j.mu.Unlock()
			if _, err := os.Stat(path); err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no results yet"})
				return
			}
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="output.csv"`)
			http.ServeFile(w, req, path)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("serve: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("serve: listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
