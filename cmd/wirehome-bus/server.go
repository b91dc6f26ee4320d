package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wirehome/wirehome-go/pkg/bus"
	"github.com/wirehome/wirehome-go/pkg/config"
	"github.com/wirehome/wirehome-go/pkg/faultstore"
	"github.com/wirehome/wirehome-go/pkg/handlers"
	"github.com/wirehome/wirehome-go/pkg/persistence"
)

const (
	subscribersPath = "/api/v1/message-bus/subscribers"
	messagesPath    = "/api/v1/message-bus/messages"
	faultsPath      = "/api/v1/message-bus/faults"
	statsPath       = "/api/v1/message-bus/stats"
)

// maxMessageBytes bounds the body of a published message.
const maxMessageBytes = 1 << 20

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Addr    string
	Version string
}

// Server exposes the broker over HTTP.
type Server struct {
	config ServerConfig
	mux    *http.ServeMux
	server *http.Server
	broker *bus.Broker
	faults *faultstore.Store
	state  *persistence.HubStateStore
	logger *slog.Logger
}

// subscriberView is the JSON representation of a subscriber.
type subscriberView struct {
	UID    string     `json:"uid"`
	Filter bus.Filter `json:"filter"`
	bus.Stats
}

type subscribeRequest struct {
	UID     string            `json:"uid"`
	Filter  map[string]string `json:"filter"`
	Action  string            `json:"action"`
	URL     string            `json:"url"`
	Timeout string            `json:"timeout"`
}

// NewServer creates the API server. faults may be nil when the fault journal
// is disabled.
func NewServer(cfg ServerConfig, broker *bus.Broker, faults *faultstore.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		broker: broker,
		faults: faults,
		logger: logger,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
	s.mux.HandleFunc(statsPath, s.handleStats)
	s.mux.HandleFunc(subscribersPath, s.handleSubscribers)
	s.mux.HandleFunc(subscribersPath+"/", s.handleSubscriberByUID)
	s.mux.HandleFunc(messagesPath, s.handleMessages)
	s.mux.HandleFunc(faultsPath, s.handleFaults)
}

// SetStateStore makes subscriptions created or removed through the API
// persistent.
func (s *Server) SetStateStore(store *persistence.HubStateStore) {
	s.state = store
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	version := s.config.Version
	if version == "" {
		version = "dev"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     version,
		"subscribers": s.broker.Count(),
		"dispatching": s.broker.Running(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var total bus.Stats
	for _, sub := range s.broker.Subscribers() {
		st := sub.Stats()
		total.Pending += st.Pending
		total.Processed += st.Processed
		total.Faulted += st.Faulted
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"published":   s.broker.PublishedCount(),
		"dropped":     s.broker.DroppedCount(),
		"subscribers": s.broker.Count(),
		"pending":     total.Pending,
		"processed":   total.Processed,
		"faulted":     total.Faulted,
	})
}

func (s *Server) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		s.handleSubscribe(w, r)
		return
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	subs := s.broker.Subscribers()
	views := make([]subscriberView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, newSubscriberView(sub))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleSubscribe registers a log or webhook subscriber described by a
// config.SubscriptionConfig-shaped JSON body. An empty uid gets a generated one.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid subscription: %v", err))
		return
	}

	sc := config.SubscriptionConfig{
		UID:    req.UID,
		Filter: req.Filter,
		Action: req.Action,
		URL:    req.URL,
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid timeout: %v", err))
			return
		}
		sc.Timeout = d
	} else if sc.Action == config.ActionWebhook {
		sc.Timeout = config.DefaultWebhookTimeout
	}

	h, err := handlers.FromConfig(sc, s.logger, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var sub *bus.Subscriber
	if sc.UID == "" {
		sub, err = s.broker.Subscribe(bus.NewFilter(sc.Filter), h)
	} else {
		sub, err = s.broker.SubscribeWithUID(sc.UID, bus.NewFilter(sc.Filter), h)
	}
	switch {
	case errors.Is(err, bus.ErrDuplicateUID):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, bus.ErrResourceExhausted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.state != nil {
		sc.UID = sub.UID()
		if err := s.state.PutSubscription(persistence.RecordFromConfig(sc)); err != nil {
			s.logger.Warn("Failed to persist subscriber", "uid", sc.UID, "error", err)
		}
	}

	s.logger.Info("Subscriber added", "uid", sub.UID(), "filter", sub.Filter().String())
	writeJSON(w, http.StatusCreated, newSubscriberView(sub))
}

func (s *Server) handleSubscriberByUID(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimPrefix(r.URL.Path, subscribersPath+"/")
	if uid == "" || strings.Contains(uid, "/") {
		writeError(w, http.StatusNotFound, "subscriber not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sub, err := s.broker.Subscriber(uid)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, newSubscriberView(sub))

	case http.MethodDelete:
		if err := s.broker.Unsubscribe(uid); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if s.state != nil {
			if err := s.state.RemoveSubscription(uid); err != nil {
				s.logger.Warn("Failed to persist subscriber removal", "uid", uid, "error", err)
			}
		}
		s.logger.Info("Subscriber removed", "uid", uid)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMessages publishes a JSON object. With ?async=true the message is
// queued and the call returns 202 before delivery.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg bus.Message
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err := dec.Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid message: %v", err))
		return
	}
	if msg == nil {
		writeError(w, http.StatusBadRequest, "invalid message: expected a JSON object")
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		switch err := s.broker.Enqueue(msg); {
		case err == nil:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		case errors.Is(err, bus.ErrQueueFull), errors.Is(err, bus.ErrNotRunning):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	n, err := s.broker.Publish(r.Context(), msg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

// handleFaults lists recent faults (optionally for one ?uid=) or, on DELETE,
// resets the journal.
func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	if s.faults == nil {
		writeError(w, http.StatusNotFound, "fault journal disabled")
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var (
			faults []faultstore.Fault
			err    error
		)
		if uid := r.URL.Query().Get("uid"); uid != "" {
			faults, err = s.faults.ForSubscriber(uid, limit)
		} else {
			faults, err = s.faults.Recent(limit)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		bySub, err := s.faults.CountBySubscriber()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if faults == nil {
			faults = []faultstore.Fault{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"by_subscriber": bySub,
			"faults":        faults,
		})

	case http.MethodDelete:
		if err := s.faults.Reset(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.logger.Info("Fault journal reset")
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func newSubscriberView(sub *bus.Subscriber) subscriberView {
	return subscriberView{
		UID:    sub.UID(),
		Filter: sub.Filter(),
		Stats:  sub.Stats(),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
