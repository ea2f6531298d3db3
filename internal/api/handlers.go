package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/miras-broadcast/miras-core/internal/project"
)

// handleSystemState returns the aggregated system state snapshot.
func (s *Server) handleSystemState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.aggregator.State())
}

// handleListDevices returns snapshots of every registered device in
// registration order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshots())
}

// handleGetDevice returns the snapshot of one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := s.registry.Get(id)
	if !ok {
		writeNotFound(w, "device not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// handleListCommands returns every command and its parameter schema.
func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Commands())
}

// commandRequest is the POST /commands request body.
type commandRequest struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// handleDispatchCommand runs one named command. Command failures are
// reported inside the result body with HTTP 200; only malformed requests
// get an HTTP error status.
func (s *Server) handleDispatchCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "command name is required")
		return
	}

	result := s.dispatcher.Dispatch(r.Context(), req.Name, req.Params)
	writeJSON(w, http.StatusOK, result)
}

// handleListProjects returns summaries of every stored project.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.projects.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list projects", "error", err)
		writeInternalError(w, "failed to list projects")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// createProjectRequest is the POST /projects request body.
type createProjectRequest struct {
	Name string `json:"name"`
}

// handleCreateProject creates a new empty project.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "project name is required")
		return
	}

	p, err := s.projects.Create(r.Context(), req.Name)
	if err != nil {
		s.logger.Error("failed to create project", "error", err)
		writeInternalError(w, "failed to create project")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleGetProject returns one project with its full grid.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.projects.Get(r.Context(), id)
	if err != nil {
		s.writeProjectError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSaveProject replaces a project's name and grid. The project id
// comes from the URL, not the body.
func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	var p project.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	p.ID = chi.URLParam(r, "id")
	if p.Name == "" {
		writeBadRequest(w, "project name is required")
		return
	}

	if err := s.projects.Save(r.Context(), &p); err != nil {
		s.writeProjectError(w, p.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeleteProject removes a project, closing it first if active.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.projects.Delete(r.Context(), id); err != nil {
		s.writeProjectError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// handleLoadProject activates a project, replacing any active one.
func (s *Server) handleLoadProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.projects.Load(r.Context(), id)
	if err != nil {
		s.writeProjectError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleCloseProject deactivates the active project. A no-op when none
// is loaded.
func (s *Server) handleCloseProject(w http.ResponseWriter, _ *http.Request) {
	s.projects.Close()
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// writeProjectError maps project storage errors to HTTP responses.
func (s *Server) writeProjectError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, project.ErrNotFound) {
		writeNotFound(w, "project not found: "+id)
		return
	}
	s.logger.Error("project operation failed", "project_id", id, "error", err)
	writeInternalError(w, "project operation failed")
}
