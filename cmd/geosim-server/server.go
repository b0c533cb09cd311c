package main

import (
	"net/http"

	"github.com/daniacca/geosim/internal/earth"
	"github.com/daniacca/geosim/internal/earth/notifiers"
)

// defaultWebSocketNotifierID is the id of the websocket notifier every server registers.
const defaultWebSocketNotifierID = "ws"

// Server represents the HTTP server for geosim runs
type Server struct {
	runs          *earth.RunManager
	notifications *earth.NotificationManager
	ws            *notifiers.WebSocketNotifier
	logger        *Logger
}

// NewServer creates a new server instance with the websocket notifier registered.
func NewServer(logger *Logger) *Server {
	nm := earth.NewNotificationManager(logger)
	ws := notifiers.NewWebSocketNotifier(defaultWebSocketNotifierID)
	if err := nm.RegisterNotifier(ws); err != nil {
		logger.Errorf("Failed to register websocket notifier: %v", err)
	}
	return &Server{
		runs:          earth.NewRunManager(nm, logger),
		notifications: nm,
		ws:            ws,
		logger:        logger,
	}
}

// Routes returns the server's HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/runs", s.handleRunsRoutes)
	mux.HandleFunc("/runs/", s.handleRunsRoutes)
	mux.HandleFunc("/notifiers", s.handleNotifiersRoutes)
	mux.HandleFunc("/notifiers/", s.handleNotifiersRoutes)
	mux.Handle("/ws", s.ws)
	return mux
}

// Close stops every run and flushes pending notifications.
func (s *Server) Close() error {
	s.runs.StopAll()
	return s.notifications.Close()
}
