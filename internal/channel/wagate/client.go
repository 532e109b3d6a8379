// Package wagate is an HTTP client for a WhatsApp web gateway that owns the
// authenticated session. Wire format is the gateway's JSON API.
package wagate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"wasender/internal/channel"
)

type Client struct {
	BaseURL   string
	APIKey    string
	SessionID string
	HTTP      *http.Client

	// State mirrors the gateway's session readiness; refreshed by PollStatus.
	State *channel.State
}

type sendTextRequest struct {
	Session string `json:"session"`
	To      string `json:"to"`
	Body    string `json:"body"`
}

type sendMediaRequest struct {
	Session  string `json:"session"`
	To       string `json:"to"`
	MediaURL string `json:"mediaUrl"`
	MimeType string `json:"mimeType"`
	Caption  string `json:"caption,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type statusResponse struct {
	Session string `json:"session"`
	Ready   bool   `json:"ready"`
}

func (c *Client) IsReady() bool {
	if c.State == nil {
		return false
	}
	return c.State.Ready()
}

func (c *Client) SendText(ctx context.Context, to, body string) (channel.Receipt, error) {
	return c.send(ctx, "/api/send/text", sendTextRequest{Session: c.SessionID, To: to, Body: body})
}

func (c *Client) SendMedia(ctx context.Context, to string, media channel.MediaRef, caption string) (channel.Receipt, error) {
	return c.send(ctx, "/api/send/media", sendMediaRequest{
		Session: c.SessionID, To: to, MediaURL: media.URL, MimeType: media.MimeType, Caption: caption,
	})
}

func (c *Client) send(ctx context.Context, path string, payload any) (channel.Receipt, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return channel.Receipt{}, err
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return channel.Receipt{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	var out sendResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != "" {
			return channel.Receipt{}, &HTTPError{Status: resp.StatusCode, Detail: out.Error}
		}
		return channel.Receipt{}, &HTTPError{Status: resp.StatusCode, Detail: "gateway send failed"}
	}
	return channel.Receipt{ProviderMsgID: out.MessageID, Status: out.Status}, nil
}

// PollStatus refreshes the ready flag once. Returns the observed readiness so
// callers can publish lifecycle events on edges.
func (c *Client) PollStatus(ctx context.Context) (bool, error) {
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/api/status?session=" + c.SessionID
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return false, &HTTPError{Status: resp.StatusCode, Detail: "status check failed"}
	}
	var st statusResponse
	if err := json.Unmarshal(raw, &st); err != nil {
		return false, err
	}
	return st.Ready, nil
}

type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string { return e.Detail }

// ShouldRetry classifies transient gateway errors.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		if he.Status == 429 || he.Status == 408 {
			return true
		}
		if he.Status >= 500 && he.Status <= 599 {
			return true
		}
	}
	return false
}

func Backoff(attempt int) time.Duration {
	// 200ms, 600ms, 1400ms approx
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}
	if attempt <= 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}
