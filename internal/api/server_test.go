package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gmsas95/kipbot/internal/agent"
	"github.com/gmsas95/kipbot/internal/channels"
	"github.com/gmsas95/kipbot/internal/llm"
	"github.com/gmsas95/kipbot/internal/memory"
	"github.com/gmsas95/kipbot/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHandler struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeHandler) Handle(_ context.Context, userID, platform, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID+"|"+platform+"|"+text)
	return "echo: " + text, nil
}

func (f *fakeHandler) Reset(string, string) {}

func newTestServer(opts Options) (*Server, *fakeHandler, *metrics.Metrics) {
	h := &fakeHandler{}
	m := metrics.New()
	d := channels.NewDispatcher(h, nil, m, zap.NewNop())
	return New(opts, d, m, zap.NewNop()), h, m
}

func kakaoBody(userID, utterance string) string {
	var req KakaoRequest
	req.UserRequest.User.ID = userID
	req.UserRequest.Utterance = utterance
	b, _ := json.Marshal(req)
	return string(b)
}

func postKakao(t *testing.T, s *Server, body string, headers map[string]string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/kakao/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(Options{})

	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(Options{Kakao: true})

	postKakao(t, s, kakaoBody("k1", "hello"), nil)

	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "go_goroutines")
}

func TestKakaoChat(t *testing.T) {
	s, h, _ := newTestServer(Options{Kakao: true})

	status, data := postKakao(t, s, kakaoBody("k1", "안녕"), nil)
	require.Equal(t, fiber.StatusOK, status)

	assert.JSONEq(t, `{"version":"2.0","template":{"outputs":[{"simpleText":{"text":"echo: 안녕"}}]}}`, string(data))
	assert.Equal(t, []string{"k1|kakao|안녕"}, h.calls)
}

func TestKakaoChat_DefaultUser(t *testing.T) {
	s, h, _ := newTestServer(Options{Kakao: true})

	status, _ := postKakao(t, s, `{"userRequest":{"utterance":"hi"}}`, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []string{"unknown|kakao|hi"}, h.calls)
}

func TestKakaoChat_RejectedInput(t *testing.T) {
	s, h, _ := newTestServer(Options{Kakao: true})

	status, data := postKakao(t, s, kakaoBody("k1", ""), nil)
	require.Equal(t, fiber.StatusOK, status)

	var resp KakaoResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Len(t, resp.Template.Outputs, 1)
	assert.NotEmpty(t, resp.Template.Outputs[0].SimpleText.Text)
	assert.Empty(t, h.calls)
}

func TestKakaoChat_BadJSON(t *testing.T) {
	s, _, _ := newTestServer(Options{Kakao: true})

	status, _ := postKakao(t, s, `{not json`, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestKakaoChat_APIKey(t *testing.T) {
	s, h, _ := newTestServer(Options{Kakao: true, KakaoAPIKey: "s3cret"})

	status, _ := postKakao(t, s, kakaoBody("k1", "hi"), nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = postKakao(t, s, kakaoBody("k1", "hi"), map[string]string{"X-Api-Key": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = postKakao(t, s, kakaoBody("k1", "hi"), map[string]string{"X-Api-Key": "s3cret"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, h.calls, 1)
}

func TestKakaoChat_NotMountedWhenDisabled(t *testing.T) {
	s, _, _ := newTestServer(Options{})

	status, _ := postKakao(t, s, kakaoBody("k1", "hi"), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	s, _, _ := newTestServer(Options{Web: true})

	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/ws?user_id=w1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebSocket_Conversation(t *testing.T) {
	s, h, _ := newTestServer(Options{Address: "127.0.0.1", Port: 0, Web: true})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+s.Addr().String()+"/ws?user_id=w1", nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, text := range []string{"first", "second"} {
		require.NoError(t, conn.WriteMessage(fastws.TextMessage, []byte(text)))
		mt, reply, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, fastws.TextMessage, mt)
		assert.Equal(t, "echo: "+text, string(reply))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{"web:w1|web|first", "web:w1|web|second"}, h.calls)
}

func TestWebUserID(t *testing.T) {
	assert.Equal(t, "web:w1", webUserID("w1"))
	assert.Equal(t, "web:"+defaultWebUser, webUserID(""))
	assert.Equal(t, "web:123456789", webUserID("123456789"))
}

func startWebServer(t *testing.T, h channels.Handler) *Server {
	t.Helper()
	d := channels.NewDispatcher(h, nil, nil, zap.NewNop())
	s := New(Options{Address: "127.0.0.1", Port: 0, Web: true}, d, metrics.New(), zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop() })
	return s
}

type recordingModel struct {
	mu      sync.Mutex
	prompts [][]llm.Message
}

func (m *recordingModel) Complete(_ context.Context, messages []llm.Message, _ []llm.Tool) (*llm.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, append([]llm.Message(nil), messages...))
	return &llm.Reply{Text: "noted"}, nil
}

func (m *recordingModel) last() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[len(m.prompts)-1]
}

func TestWebSocket_DoesNotSeedFromOtherPlatformMemory(t *testing.T) {
	model := &recordingModel{}
	ag := agent.New(agent.Options{
		Model:  model,
		Memory: memory.NewFileStore(t.TempDir(), zap.NewNop(), nil),
	})

	_, err := ag.Handle(context.Background(), "123456789", "telegram", "my bank PIN is 4321")
	require.NoError(t, err)

	s := startWebServer(t, ag)
	conn, _, err := fastws.DefaultDialer.Dial("ws://"+s.Addr().String()+"/ws?user_id=123456789", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(fastws.TextMessage, []byte("what did I tell you?")))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "noted", string(reply))

	for _, msg := range model.last() {
		assert.NotContains(t, msg.Content, "4321")
	}
}

type blockingHandler struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (b *blockingHandler) Handle(ctx context.Context, _, _, _ string) (string, error) {
	close(b.started)
	<-ctx.Done()
	close(b.cancelled)
	return "", ctx.Err()
}

func (b *blockingHandler) Reset(string, string) {}

func TestWebSocket_DisconnectCancelsTurn(t *testing.T) {
	h := &blockingHandler{started: make(chan struct{}), cancelled: make(chan struct{})}
	s := startWebServer(t, h)

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+s.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(fastws.TextMessage, []byte("long task")))

	select {
	case <-h.started:
	case <-time.After(2 * time.Second):
		t.Fatal("turn never started")
	}
	conn.Close()

	select {
	case <-h.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("turn was not cancelled after disconnect")
	}
}
