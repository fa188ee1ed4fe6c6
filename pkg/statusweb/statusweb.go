// Package statusweb serves a read-only JSON view of experiment status over
// HTTP, grounded on the pack's gorilla/mux server wiring and rate-limited
// with go-chi/httprate the way a public-facing status endpoint should be.
package statusweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/gourd-go/gourd/pkg/model"
	"github.com/gourd-go/gourd/pkg/status"
)

// StatusProvider returns the current reconciled status for an experiment.
// The server calls it once per request.
type StatusProvider func() (*model.Experiment, []status.Status, error)

// Server serves GET /status and GET /status/{run_id} as JSON.
type Server struct {
	logger   log.Logger
	server   *http.Server
	provide  StatusProvider
}

// runView is the JSON shape returned for one run.
type runView struct {
	RunID      int    `json:"run_id"`
	Program    string `json:"program"`
	Input      string `json:"input"`
	Completed  bool   `json:"completed"`
	Failed     bool   `json:"failed"`
	Scheduled  bool   `json:"scheduled"`
	Label      string `json:"label,omitempty"`
	SlurmState string `json:"slurm_state,omitempty"`
}

// NewServer builds a status server listening on addr, rate-limited to 60
// requests per minute per client.
func NewServer(logger log.Logger, addr string, provide StatusProvider) *Server {
	router := mux.NewRouter()
	router.Use(httprate.LimitByIP(60, time.Minute))

	s := &Server{
		logger:  logger,
		provide: provide,
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
		},
	}

	router.HandleFunc("/status", s.handleAll).Methods(http.MethodGet)
	router.HandleFunc("/status/{run_id}", s.handleOne).Methods(http.MethodGet)

	return s
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	exp, statuses, err := s.provide()
	if err != nil {
		s.writeError(w, err)

		return
	}

	views := make([]runView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, toView(exp, st))
	}

	s.writeJSON(w, views)
}

func (s *Server) handleOne(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var runID int
	if _, err := fmt.Sscanf(vars["run_id"], "%d", &runID); err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)

		return
	}

	exp, statuses, err := s.provide()
	if err != nil {
		s.writeError(w, err)

		return
	}

	st, err := status.ByRunID(statuses, runID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			http.NotFound(w, r)

			return
		}

		s.writeError(w, err)

		return
	}

	s.writeJSON(w, toView(exp, st))
}

func toView(exp *model.Experiment, st status.Status) runView {
	run, _ := exp.RunByID(st.RunID)

	v := runView{
		RunID:     st.RunID,
		Completed: st.IsCompleted(),
		Failed:    st.HasFailed(),
		Scheduled: st.IsScheduled(),
	}

	if run != nil {
		v.Program = run.Program.Name
		v.Input = run.Input
	}

	if st.FS.Label != nil {
		v.Label = st.FS.Label.Name
	}

	if st.SlurmStatus != nil {
		v.SlurmState = st.SlurmStatus.State.String()
	}

	return v
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		level.Error(s.logger).Log("msg", "encoding status response failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	level.Error(s.logger).Log("msg", "status provider failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// Start blocks serving status requests until Shutdown is called.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}

	return nil
}

// Shutdown stops the status server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
