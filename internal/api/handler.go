// Package api serves the task list over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spetr/doit/internal/reconcile"
	"github.com/spetr/doit/internal/tasks"
	"github.com/spetr/doit/pkg/types"
)

const maxRequestBodySize = 64 << 10 // 64KB

// TaskRequest is the body of POST /tasks and PATCH /tasks/{id}.
type TaskRequest struct {
	Text string `json:"text"`
}

// ScanRequest is the optional body of POST /scan.
type ScanRequest struct {
	Path   string `json:"path"`
	Rescan bool   `json:"rescan"`
}

type AppDeps struct {
	Engine  *reconcile.Engine
	Project string // scope of list and stats unless ?all_projects=true
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth())
	r.Get("/tasks", handleListTasks(deps))
	r.Post("/tasks", handleAddTask(deps))
	r.Patch("/tasks/{id}", handleEditTask(deps))
	r.Delete("/tasks/{id}", handleDeleteTask(deps))
	r.Post("/tasks/{id}/toggle", handleToggleTask(deps))
	r.Post("/tasks/{id}/revive", handleReviveTask(deps))
	r.Get("/stats", handleStats(deps))
	r.Post("/scan", handleScan(deps))
	r.Post("/validate", handleValidate(deps))

	return r
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleListTasks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := deps.Engine.Store()
		project := scope(r, deps.Project)

		var list []types.Task
		switch view := r.URL.Query().Get("view"); view {
		case "", "pending":
			list = store.Pending(project)
		case "completed":
			list = store.Completed(project)
		case "all":
			list = tasks.Filter(store.All(), tasks.InProject(project))
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown view %q", view)
			return
		}

		if list == nil {
			list = []types.Task{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleAddTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTaskRequest(w, r)
		if !ok {
			return
		}

		t, err := deps.Engine.Store().Add(req.Text, deps.Project)
		if err != nil {
			storeError(w, "add", err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func handleEditTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTaskRequest(w, r)
		if !ok {
			return
		}

		t, err := deps.Engine.Store().Edit(taskID(r), req.Text)
		if err != nil {
			storeError(w, "edit", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleDeleteTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Engine.Store().Delete(taskID(r)); err != nil {
			storeError(w, "delete", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleToggleTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Engine.Store().Toggle(taskID(r))
		if err != nil {
			storeError(w, "toggle", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleReviveTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Engine.Store().Revive(taskID(r))
		if err != nil {
			storeError(w, "revive", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Engine.Store().Stats(scope(r, deps.Project)))
	}
}

func handleScan(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if r.ContentLength != 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		var (
			report types.Report
			err    error
		)
		switch {
		case req.Path != "":
			report, err = deps.Engine.ScanFile(r.Context(), req.Path)
		case req.Rescan:
			report, err = deps.Engine.Rescan(r.Context())
		default:
			report, err = deps.Engine.ScanWorkspace(r.Context())
		}

		switch {
		case errors.Is(err, types.ErrFileUnreadable):
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
		case errors.Is(err, types.ErrFileExcluded):
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
		case errors.Is(err, types.ErrFileTooLarge):
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "%v", err)
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "scan failed: %v", err)
		default:
			writeJSON(w, http.StatusOK, report)
		}
	}
}

func handleValidate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := deps.Engine.Validate(r.Context())
		if report.Skipped {
			writeJSON(w, http.StatusAccepted, report)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func decodeTaskRequest(w http.ResponseWriter, r *http.Request) (TaskRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return req, false
	}
	return req, true
}

// taskID returns the {id} route parameter. File-derived IDs contain slashes,
// so clients send them path-escaped.
func taskID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

func scope(r *http.Request, project string) string {
	if r.URL.Query().Get("all_projects") == "true" {
		return ""
	}
	return project
}

func storeError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, types.ErrEmptyText):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
	case errors.Is(err, types.ErrTaskRemoved):
		httpError(w, http.StatusConflict, "conflict", "annotation was removed from its file; revive the task instead")
	case errors.Is(err, types.ErrDuplicateTask):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "failed to %s task: %v", action, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
