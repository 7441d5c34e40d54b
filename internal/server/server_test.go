package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Busskov/study-clock/internal/chat"
	"github.com/Busskov/study-clock/internal/identity"
	"github.com/Busskov/study-clock/internal/server"
	"github.com/Busskov/study-clock/internal/store"
	"github.com/Busskov/study-clock/pkg/config"
	"github.com/coder/websocket"
)

const testSecret = "integration-test-secret"

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:         ":0",
			Auth:            config.AuthConfig{JWTSecret: testSecret},
			ConnectionLimit: config.ConnectionLimitConfig{Mode: "reject"},
		},
		Transport: config.TransportConfig{
			ReadTimeout: time.Minute,
			SendBuffer:  16,
		},
		Chat: config.ChatConfig{AnonymousName: "Anonymous"},
	}
}

func newTestApp(t *testing.T) (*server.App, *httptest.Server) {
	t.Helper()
	logger := newTestLogger()

	st, err := store.NewBadgerStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	provider := identity.NewTokenProvider(logger, testSecret)
	app := server.NewApp(logger, context.Background(), newTestConfig(), st, provider)
	ts := httptest.NewServer(app.Handler())
	t.Cleanup(ts.Close)
	return app, ts
}

func cookieFor(t *testing.T, user identity.User) string {
	t.Helper()
	token, err := identity.SignToken(testSecret, user)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return "session-token=" + token
}

func dial(t *testing.T, url, cookie string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{}
	if cookie != "" {
		opts.HTTPHeader = http.Header{"Cookie": []string{cookie}}
	}
	c, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func writeFrame(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

func readFrame(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decoding frame %q: %v", data, err)
	}
}

// waitForMembers blocks until the room reaches the wanted size; joins
// complete shortly after the client's dial returns.
func waitForMembers(t *testing.T, app *server.App, roomKey string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(app.Registry().MembersOf(roomKey)) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d members", roomKey, want)
}

func TestPairwiseChatScenario(t *testing.T) {
	app, ts := newTestApp(t)
	roomKey := chat.PairKey(7, 9)

	conn7 := dial(t, ts.URL+"/ws/chat/9", cookieFor(t, identity.User{ID: 7, Username: "seven"}))
	conn9 := dial(t, ts.URL+"/ws/chat/7", cookieFor(t, identity.User{ID: 9, Username: "nine"}))
	waitForMembers(t, app, roomKey, 2)

	writeFrame(t, conn7, `{"content":"hi"}`)

	for name, c := range map[string]*websocket.Conn{"sender": conn7, "receiver": conn9} {
		var record store.Record
		readFrame(t, c, &record)
		if record.ID != 1 || record.Sender != 7 || record.Receiver != 9 ||
			record.Content != "hi" || record.IsRead {
			t.Errorf("%s received unexpected record: %+v", name, record)
		}
		if record.Timestamp.IsZero() {
			t.Errorf("%s received record without timestamp", name)
		}
	}
}

func TestUnauthenticatedChatRejected(t *testing.T) {
	app, ts := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, ts.URL+"/ws/chat/5", nil)
	if err == nil {
		t.Fatal("Expected unauthenticated handshake to fail")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 response, got %d", resp.StatusCode)
	}
	if got := len(app.Registry().AllMembers()); got != 0 {
		t.Errorf("Expected no room joins after rejection, found %d members", got)
	}
}

func TestSupportRoomScenario(t *testing.T) {
	app, ts := newTestApp(t)

	conns := []*websocket.Conn{
		dial(t, ts.URL+"/ws/support", ""),
		dial(t, ts.URL+"/ws/support", ""),
		dial(t, ts.URL+"/ws/support", ""),
	}
	waitForMembers(t, app, chat.SupportRoomKey, 3)

	writeFrame(t, conns[0], `{"message":"hello"}`)

	for i, c := range conns {
		var frame chat.SupportFrame
		readFrame(t, c, &frame)
		if frame.Message != "hello" || frame.Username != "Anonymous" {
			t.Errorf("Member %d received %+v", i, frame)
		}
	}
}

func TestMessageHistoryEndpoint(t *testing.T) {
	app, ts := newTestApp(t)
	roomKey := chat.PairKey(7, 9)

	conn7 := dial(t, ts.URL+"/ws/chat/9", cookieFor(t, identity.User{ID: 7}))
	waitForMembers(t, app, roomKey, 1)
	writeFrame(t, conn7, `{"content":"first"}`)
	writeFrame(t, conn7, `{"content":"second"}`)

	// Drain the echoes so both messages are known to be persisted.
	for i := 0; i < 2; i++ {
		var record store.Record
		readFrame(t, conn7, &record)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/messages/7", nil)
	req.Header.Set("Cookie", cookieFor(t, identity.User{ID: 9}))
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("history request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var records []store.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Content != "first" || records[1].Content != "second" {
		t.Errorf("History out of order: %+v", records)
	}
}

func TestSendMessageEndpoint(t *testing.T) {
	app, ts := newTestApp(t)
	roomKey := chat.PairKey(7, 9)

	// User 9 is connected and should see the REST-sent message live.
	conn9 := dial(t, ts.URL+"/ws/chat/7", cookieFor(t, identity.User{ID: 9}))
	waitForMembers(t, app, roomKey, 1)

	body := bytes.NewBufferString(`{"receiver":9,"content":"via rest"}`)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/messages", body)
	req.Header.Set("Cookie", cookieFor(t, identity.User{ID: 7}))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("send request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var created store.Record
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Sender != 7 || created.Receiver != 9 || created.Content != "via rest" {
		t.Errorf("Unexpected created record: %+v", created)
	}

	var live store.Record
	readFrame(t, conn9, &live)
	if live.ID != created.ID || live.Content != "via rest" {
		t.Errorf("Live delivery mismatch: %+v vs %+v", live, created)
	}
}

func TestSendMessageValidation(t *testing.T) {
	_, ts := newTestApp(t)

	for _, body := range []string{
		`{"receiver":9}`,
		`{"content":"hi"}`,
		`not json`,
	} {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/messages", bytes.NewBufferString(body))
		req.Header.Set("Cookie", cookieFor(t, identity.User{ID: 7}))
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
}
