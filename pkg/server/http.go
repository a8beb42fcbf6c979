package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/embedmeet/embedmeet/pkg/controller"
	"github.com/embedmeet/embedmeet/pkg/log"
	"github.com/embedmeet/embedmeet/pkg/roomname"
)

// HTTPServer handles REST API requests
type HTTPServer struct {
	manager  *controller.Manager
	wsServer *WebSocketServer
	router   chi.Router
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(manager *controller.Manager, wsServer *WebSocketServer) *HTTPServer {
	server := &HTTPServer{
		manager:  manager,
		wsServer: wsServer,
	}
	server.registerRoutes()
	return server
}

// ServeHTTP implements the http.Handler interface
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Infof("Received request: %s %s", r.Method, r.URL.Path)
	s.router.ServeHTTP(w, r)
}

// registerRoutes sets up the API routes
func (s *HTTPServer) registerRoutes() {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/api/servers", s.handleListServers)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleStartSession)
		r.Get("/", s.handleListSessions)
		r.Route("/{room}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleLeaveSession)
			r.Post("/retry", s.handleRetrySession)
			r.Post("/server", s.handleSwitchServer)
			r.Post("/controls/{control}", s.handleControl)
		})
	})

	r.Get("/ws/events/{room}", s.wsServer.HandleEvents)
	r.Get("/ws/page", s.wsServer.HandlePage)

	s.router = r
}

// StartSessionRequest is the request body for starting a session
type StartSessionRequest struct {
	RoomName    string `json:"room_name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Host        bool   `json:"host"`
}

// SwitchServerRequest is the request body for switching servers
type SwitchServerRequest struct {
	Domain string `json:"domain"`
}

// handleStartSession creates a session and begins the join sequence
func (s *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctrl, err := s.manager.StartSession(req.RoomName, req.DisplayName, req.Email, req.Host)
	if err != nil {
		var vErr *controller.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"room":     ctrl.Room(),
		"state":    ctrl.State().String(),
		"join_url": ctrl.JoinURL(),
	})
}

// handleListSessions lists all active sessions
func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.manager.List()

	type sessionInfo struct {
		Room  string `json:"room"`
		State string `json:"state"`
	}

	response := make([]sessionInfo, 0, len(sessions))
	for room, state := range sessions {
		response = append(response, sessionInfo{Room: room, State: state.String()})
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetSession returns the full view of one session
func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, exists := s.manager.Get(chi.URLParam(r, "room"))
	if !exists {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room":         ctrl.Room(),
		"state":        ctrl.State().String(),
		"participants": ctrl.Participants(),
		"join_url":     ctrl.JoinURL(),
		"session":      ctrl.Store().Snapshot(),
	})
}

// handleLeaveSession ends a session
func (s *HTTPServer) handleLeaveSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Leave(chi.URLParam(r, "room")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// handleRetrySession restarts the join sequence after a recoverable failure
func (s *HTTPServer) handleRetrySession(w http.ResponseWriter, r *http.Request) {
	ctrl, exists := s.manager.Get(chi.URLParam(r, "room"))
	if !exists {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	if err := ctrl.Retry(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"state": ctrl.State().String()})
}

// handleSwitchServer restarts the session against a different server
func (s *HTTPServer) handleSwitchServer(w http.ResponseWriter, r *http.Request) {
	ctrl, exists := s.manager.Get(chi.URLParam(r, "room"))
	if !exists {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	var req SwitchServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, known := roomname.ServerByDomain(req.Domain); !known {
		writeError(w, http.StatusBadRequest, "Unknown server domain")
		return
	}

	if err := ctrl.SwitchServer(req.Domain); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"state":  ctrl.State().String(),
		"domain": req.Domain,
	})
}

// handleControl toggles one in-meeting control and returns the session view
func (s *HTTPServer) handleControl(w http.ResponseWriter, r *http.Request) {
	ctrl, exists := s.manager.Get(chi.URLParam(r, "room"))
	if !exists {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	store := ctrl.Store()
	switch chi.URLParam(r, "control") {
	case "audio":
		store.ToggleAudio()
	case "video":
		store.ToggleVideo()
	case "chat":
		store.ToggleChat()
	case "screen-share":
		store.ToggleScreenShare()
	default:
		writeError(w, http.StatusBadRequest, "Unknown control")
		return
	}

	writeJSON(w, http.StatusOK, store.Snapshot())
}

// handleListServers lists the selectable conference servers
func (s *HTTPServer) handleListServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, roomname.Servers)
}

// handleHealth returns health status for the process manager
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"session_count": s.manager.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	data, err := CreateErrorMessage(msg, status)
	if err != nil {
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
