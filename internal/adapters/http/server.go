package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/sirupsen/logrus"

	"gonephishing/internal/adapters/xlsxexport"
	"gonephishing/internal/ports"
	"gonephishing/internal/services/scanner"
)

const (
	maxSubmitBytes = 1 << 20
	writeTimeout   = 5 * time.Second
	xlsxMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Server exposes job submission, status and the live task stream.
type Server struct {
	scanner ports.Scanner
	hub     *Hub
	log     *logrus.Entry
}

func New(scanner ports.Scanner, hub *Hub, log *logrus.Entry) *Server {
	return &Server{scanner: scanner, hub: hub, log: log.WithField("component", "http")}
}

// Routes returns a chi.Router with every API route mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Post("/scans", s.submit)
	r.Route("/scans/{id}", func(r chi.Router) {
		r.Get("/", s.getJob)
		r.Get("/tasks", s.listTasks)
		r.Get("/findings", s.listFindings)
		r.Get("/findings.xlsx", s.exportFindings)
		r.Get("/ws", s.stream)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	job, err := s.scanner.Submit(r.Context(), req.Owner, req.Seeds)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	_, progress, err := s.scanner.Job(r.Context(), job.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/scans/%d", job.ID))
	writeJSON(w, http.StatusAccepted, newJobView(job, progress))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, progress, err := s.scanner.Job(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job, progress))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	tasks, err := s.scanner.Tasks(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]taskView, len(tasks))
	for i, t := range tasks {
		out[i] = newTaskView(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listFindings(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	findings, err := s.scanner.Findings(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]findingView, len(findings))
	for i, f := range findings {
		out[i] = findingView{
			ID:              f.ID,
			TaskID:          f.TaskID,
			CandidateDomain: f.CandidateDomain,
			Score:           f.Score,
			Reasons:         f.Reasons,
			CreatedAt:       f.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) exportFindings(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	job, _, err := s.scanner.Job(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tasks, err := s.scanner.Tasks(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	findings, err := s.scanner.Findings(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="scan-%d-findings.xlsx"`, id))
	if err := xlsxexport.Write(w, job, tasks, findings); err != nil {
		s.log.WithError(err).WithField("job_id", id).Error("writing workbook")
	}
}

// stream sends a progress snapshot followed by every task update of the job,
// and closes once all tasks are terminal.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if _, _, err := s.scanner.Job(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept failed")
		return
	}
	defer c.CloseNow()

	updates := s.hub.Subscribe(id)
	defer s.hub.Unsubscribe(id, updates)
	ctx := c.CloseRead(r.Context())

	done, err := s.sendProgress(ctx, c, id)
	if err != nil || done {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if err := write(ctx, c, streamEvent{Type: "task", Task: &u}); err != nil {
				return
			}
			if done, err := s.sendProgress(ctx, c, id); err != nil || done {
				return
			}
		}
	}
}

// sendProgress writes the current progress and, when the job is complete,
// closes the connection normally.
func (s *Server) sendProgress(ctx context.Context, c *websocket.Conn, id int64) (bool, error) {
	_, progress, err := s.scanner.Job(ctx, id)
	if err != nil {
		return false, err
	}
	if err := write(ctx, c, streamEvent{Type: "progress", Progress: &progress}); err != nil {
		return false, err
	}
	if progress.Complete() {
		return true, c.Close(websocket.StatusNormalClosure, "scan complete")
	}
	return false, nil
}

func write(ctx context.Context, c *websocket.Conn, v streamEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}

// jobID binds the {id} path parameter, writing a 400 on failure.
func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid format for parameter id: %w", err))
		return 0, false
	}
	return id, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, scanner.ErrNoSeeds):
		writeError(w, http.StatusBadRequest, err)
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}
