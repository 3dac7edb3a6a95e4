package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"frontdesk/internal/ai"
	"frontdesk/internal/config"
	"frontdesk/internal/domain"
	"frontdesk/internal/engine"
	"frontdesk/internal/journal"
)

// queueScheduler lets tests fire settlements on demand.
type queueScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (s *queueScheduler) AfterFunc(_ time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, fn)
}

func (s *queueScheduler) fire(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		t.Fatal("no scheduled work to fire")
	}
	fn := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()
	fn()
}

type testServer struct {
	URL    string
	eng    *engine.Engine
	sched  *queueScheduler
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	j, err := journal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	cfg := config.Default()
	e := engine.New(cfg, ai.Offline{}, j, nil)
	sched := &queueScheduler{}
	e.Scheduler = sched

	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		eng:    e,
		sched:  sched,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			j.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestMessageLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/messages", map[string]any{
		"owner_key": "chat:100",
		"text":      "Create a newsletter about remote work for startup founders, professional tone",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("ingest status %d: %s", res.StatusCode, string(data))
	}
	var ingest engine.IngestResult
	if err := json.Unmarshal(data, &ingest); err != nil {
		t.Fatalf("unmarshal ingest result: %v", err)
	}
	if ingest.Phase != domain.PhaseGenerating {
		t.Fatalf("phase = %s, want generating", ingest.Phase)
	}

	srv.sched.fire(t)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/conversations/"+ingest.ConversationID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get conversation status %d: %s", res.StatusCode, string(data))
	}
	var conv domain.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		t.Fatalf("unmarshal conversation: %v", err)
	}
	if conv.Phase != domain.PhaseReview || conv.ResultID == nil {
		t.Fatalf("conversation after settlement: phase=%s result=%v", conv.Phase, conv.ResultID)
	}
	artifactID := *conv.ResultID

	// Rendered preview for the review page.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/artifacts/"+artifactID+"/preview", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preview status %d: %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("preview content type %q", ct)
	}
	if !strings.Contains(string(data), "<h1") {
		t.Fatalf("preview missing rendered heading: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/"+artifactID+"/approve", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	var art domain.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		t.Fatalf("unmarshal artifact: %v", err)
	}
	if art.Status != domain.ArtifactApproved {
		t.Fatalf("artifact status = %s, want approved", art.Status)
	}

	// Approving again is a no-op, not an error.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/"+artifactID+"/approve", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second approve status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?after=0&limit=100", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("event feed is empty after full lifecycle")
	}
}

func TestRejectRequiresFeedbackOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/messages", map[string]any{
		"owner_key": "chat:101",
		"text":      "Create a newsletter about testing for gophers, casual tone",
	}, nil)
	var ingest engine.IngestResult
	if err := json.Unmarshal(data, &ingest); err != nil {
		t.Fatalf("unmarshal ingest result: %v", err)
	}
	srv.sched.fire(t)
	conv, err := srv.eng.Conversations.Get(ingest.ConversationID)
	if err != nil || conv.ResultID == nil {
		t.Fatalf("conversation not in review: %v %v", err, conv.ResultID)
	}
	artifactID := *conv.ResultID

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/"+artifactID+"/reject", map[string]any{
		"feedback": "   ",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank feedback status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "feedback_required" {
		t.Fatalf("error code = %q, want feedback_required", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/"+artifactID+"/reject", map[string]any{
		"feedback": "too long, trim the deep dive",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject status %d: %s", res.StatusCode, string(data))
	}
	var art domain.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		t.Fatalf("unmarshal artifact: %v", err)
	}
	if art.Status != domain.ArtifactRejected || art.Feedback == "" {
		t.Fatalf("rejected artifact = %+v", art)
	}
}

func TestAuthModes(t *testing.T) {
	secret := "test-secret"
	srv := newTestServer(t, AuthConfig{JWTSecret: secret, AllowLegacyActorHeader: true})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/workers", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no credentials status %d, want 401", res.StatusCode)
	}

	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d, want 200", res.StatusCode)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "reviewer"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/workers", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bearer status %d: %s", res.StatusCode, string(data))
	}
	var workers []domain.Worker
	if err := json.Unmarshal(data, &workers); err != nil {
		t.Fatalf("unmarshal workers: %v", err)
	}
	if len(workers) != 5 {
		t.Fatalf("worker count = %d, want 5", len(workers))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/workers", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d, want 401", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/workers", nil, map[string]string{
		"X-Actor-Id": "legacy-user",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("legacy header status %d, want 200", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{APIKeyHashes: []string{HashAPIKey("sk-local-1")}})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{
		"X-Api-Key": "sk-wrong",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key status %d, want 401", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{
		"X-Api-Key": "sk-local-1",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key status %d, want 200", res.StatusCode)
	}
}

func TestUnknownArtifactIs404(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/artifacts/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}
