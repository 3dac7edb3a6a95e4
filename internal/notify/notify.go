// Package notify delivers outbound messages to the conversation owner via
// the chat bridge. The transport is out of scope for the engine; it only
// needs Notify(ownerKey, text).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

type Notifier interface {
	Notify(ctx context.Context, ownerKey, text string) error
}

// Relay posts {chat_id, message} to the bridge's send endpoint, the way the
// office proxy expects it.
type Relay struct {
	URL    string
	Client *http.Client
}

func NewRelay(url string) *Relay {
	return &Relay{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *Relay) Notify(ctx context.Context, ownerKey, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": ownerKey,
		"message": text,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("relay status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// LogNotifier writes outbound messages to the process log. Used when no
// relay is configured and in tests.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Notify(_ context.Context, ownerKey, text string) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify %s: %s", ownerKey, text)
	return nil
}
