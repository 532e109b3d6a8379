package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"wasender/internal/events"
	"wasender/internal/store"
	"wasender/internal/util"
)

// EventStream serves bus events over SSE. One registered listener per
// connection; the bus drops events for us if the client can't keep up, so a
// stalled browser tab never slows dispatch.
type EventStream struct {
	Bus *events.Bus
}

func (s *EventStream) Register(m *mux.Router) {
	m.HandleFunc("/v1/events/stream", s.handleStream).Methods(http.MethodGet)
}

func (s *EventStream) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, unsub := s.Bus.Subscribe(64)
	defer unsub()

	// Late subscribers get the most recent event right away.
	if last, ok := s.Bus.Last(); ok {
		writeSSE(w, last)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, e)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e events.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + e.Type + "\ndata: " + string(b) + "\n\n"))
}

// ReceiptStore records transport-reported delivery/read receipts.
type ReceiptStore interface {
	UpdateReceipt(ctx context.Context, in store.ReceiptUpdate) (bool, error)
}

// Webhook accepts gateway callbacks: delivery acks, read receipts and
// session lifecycle changes.
type Webhook struct {
	Store ReceiptStore
	Bus   *events.Bus
	State interface{ SetReady(bool) }
}

type gatewayCallback struct {
	Event         string `json:"event"` // delivered | read | ready | disconnected | qr
	ProviderMsgID string `json:"messageId,omitempty"`
	QR            string `json:"qr,omitempty"`
}

func (h *Webhook) Register(m *mux.Router) {
	m.HandleFunc("/v1/webhooks/wagate", h.handleCallback).Methods(http.MethodPost)
}

func (h *Webhook) handleCallback(w http.ResponseWriter, r *http.Request) {
	var cb gatewayCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	switch cb.Event {
	case "delivered", "read":
		if cb.ProviderMsgID == "" {
			http.Error(w, ErrMissingID, http.StatusBadRequest)
			return
		}
		_, err := h.Store.UpdateReceipt(r.Context(), store.ReceiptUpdate{
			ProviderMsgID: cb.ProviderMsgID,
			Delivered:     true, // a read receipt implies delivery
			Read:          cb.Event == "read",
			Now:           util.NowUTC(),
		})
		if err != nil {
			slog.Error("receipt update failed", "err", err, "provider_msg_id", cb.ProviderMsgID)
			http.Error(w, ErrDependency, http.StatusInternalServerError)
			return
		}
	case "ready":
		h.State.SetReady(true)
		h.Bus.Publish(events.Event{Type: events.TypeChannelReady})
	case "disconnected":
		h.State.SetReady(false)
		h.Bus.Publish(events.Event{Type: events.TypeChannelDisconnected})
	case "qr":
		h.Bus.Publish(events.Event{Type: events.TypeChannelQR, Data: map[string]string{"qr": cb.QR}})
	default:
		// Unknown gateway events are acknowledged and ignored.
	}

	w.WriteHeader(http.StatusOK)
}
