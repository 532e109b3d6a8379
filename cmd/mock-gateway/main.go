// mock-gateway is a stand-in WhatsApp web gateway for local development:
// it accepts the send API, succeeds or fails per MOCK_SUCCESS_RATE, and lets
// tests flip session readiness at runtime.
package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"wasender/internal/config"
	"wasender/internal/logging"
)

type gateway struct {
	cfg   config.MockGatewayConfig
	ready atomic.Bool

	mu   sync.Mutex
	seq  int64
	sent []sentMessage
}

type sentMessage struct {
	To      string    `json:"to"`
	Body    string    `json:"body"`
	Media   string    `json:"media,omitempty"`
	Caption string    `json:"caption,omitempty"`
	At      time.Time `json:"at"`
}

type sendRequest struct {
	Session  string `json:"session"`
	To       string `json:"to"`
	Body     string `json:"body"`
	MediaURL string `json:"mediaUrl"`
	MimeType string `json:"mimeType"`
	Caption  string `json:"caption"`
}

func main() {
	cfg := config.LoadMockGateway()
	logging.Init("mock-gateway", cfg.LogFormat)

	g := &gateway{cfg: cfg}
	g.ready.Store(cfg.StartReady)

	m := mux.NewRouter()
	m.HandleFunc("/api/status", g.handleStatus).Methods(http.MethodGet)
	m.HandleFunc("/api/send/text", g.handleSend).Methods(http.MethodPost)
	m.HandleFunc("/api/send/media", g.handleSend).Methods(http.MethodPost)
	// Test controls.
	m.HandleFunc("/control/ready", g.handleSetReady).Methods(http.MethodPost)
	m.HandleFunc("/control/sent", g.handleListSent).Methods(http.MethodGet)

	slog.Info("mock gateway listening", "port", cfg.Port, "success_rate", cfg.SuccessRate)
	if err := http.ListenAndServe(":"+cfg.Port, m); err != nil {
		slog.Error("mock gateway failed", "err", err)
		os.Exit(1)
	}
}

func (g *gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session": r.URL.Query().Get("session"),
		"ready":   g.ready.Load(),
	})
}

func (g *gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if !g.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "session not connected"})
		return
	}
	if g.cfg.DelayMs > 0 {
		time.Sleep(time.Duration(g.cfg.DelayMs) * time.Millisecond)
	}
	if rand.Float64() >= g.cfg.SuccessRate {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "send failed"})
		return
	}

	g.mu.Lock()
	g.seq++
	id := g.seq
	g.sent = append(g.sent, sentMessage{
		To: req.To, Body: req.Body, Media: req.MediaURL, Caption: req.Caption, At: time.Now().UTC(),
	})
	g.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"messageId": "wam_" + strconv.FormatInt(id, 10),
		"status":    "sent",
	})
}

func (g *gateway) handleSetReady(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ready bool `json:"ready"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	g.ready.Store(req.Ready)
	w.WriteHeader(http.StatusNoContent)
}

func (g *gateway) handleListSent(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	out := make([]sentMessage, len(g.sent))
	copy(out, g.sent)
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
