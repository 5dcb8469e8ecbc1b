package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msalmanai62/rag-bot/internal/chat"
	"github.com/msalmanai62/rag-bot/internal/index"
	"github.com/msalmanai62/rag-bot/internal/ingest"
	"github.com/msalmanai62/rag-bot/internal/rag"
	"github.com/msalmanai62/rag-bot/internal/registry"
	"github.com/msalmanai62/rag-bot/internal/store"
	"github.com/msalmanai62/rag-bot/internal/testutil"
)

type apiFixture struct {
	srv *httptest.Server
	llm *testutil.MockLLM
	reg *registry.Registry
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"), testutil.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	g := testutil.NewGenkit(t)
	llm := testutil.NewMockLLM("fallback")
	llm.RegisterModel(g)
	embed := index.NewEmbeddingFunc(testutil.NewMockEmbedder(16).RegisterEmbedder(g))

	indexDir := t.TempDir()
	factory := func(owner string, chatID uuid.UUID, handle *index.Handle) *chat.Agent {
		return chat.NewAgent(chat.AgentConfig{
			Genkit:    g,
			ModelName: "mock/test-model",
			Handle:    handle,
			Store:     st,
			Owner:     owner,
			ChatID:    chatID,
			TopK:      3,
			Logger:    testutil.DiscardLogger(),
		})
	}
	reg := registry.New(indexDir, embed, factory, testutil.DiscardLogger())

	svc := rag.NewService(rag.ServiceConfig{
		Store:    st,
		Registry: reg,
		Ingest:   ingest.NewPipeline(st, reg, ingest.NewSplitter(1000, 200), nil, 1<<20, testutil.DiscardLogger()),
		Turns:    chat.NewPipeline(st, reg, 4, testutil.DiscardLogger()),
		IndexDir: indexDir,
		Logger:   testutil.DiscardLogger(),
	})

	server, err := NewServer(t.Context(), ServerConfig{
		Logger:   testutil.DiscardLogger(),
		Service:  svc,
		Store:    st,
		MaxBytes: 1 << 20,
		RateRPS:  1000,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &apiFixture{srv: srv, llm: llm, reg: reg}
}

func (f *apiFixture) request(t *testing.T, method, path, ownerID string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, body)
	require.NoError(t, err)
	if ownerID != "" {
		req.Header.Set(ownerHeader, ownerID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func (f *apiFixture) createChat(t *testing.T, ownerID, name string) string {
	t.Helper()
	resp := f.request(t, http.MethodPost, "/api/chats", ownerID,
		strings.NewReader(`{"name":"`+name+`"}`), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]string
	decodeJSON(t, resp, &body)
	require.NotEmpty(t, body["chat_id"])
	return body["chat_id"]
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodGet, "/ready", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateChatRequiresIdentity(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/chats", "", strings.NewReader(`{}`), "application/json")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateChatSeedsURL(t *testing.T) {
	var fetches atomic.Int32
	seed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Seed</title></head><body><article>
<p>The starter corpus describes how seeded sessions come up ready to answer.</p>
</article></body></html>`))
	}))
	defer seed.Close()

	f := newAPIFixture(t)
	resp := f.request(t, http.MethodPost, "/api/chats", "alice",
		strings.NewReader(`{"name":"seeded","default_url":"`+seed.URL+`"}`), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]string
	decodeJSON(t, resp, &body)
	chatID, err := uuid.Parse(body["chat_id"])
	require.NoError(t, err)

	// Wait for the seed content to land in the index, not just for the
	// fetch, so the background worker is done before the test ends.
	require.Eventually(t, func() bool {
		handle, _, err := f.reg.GetOrCreate(t.Context(), "alice", chatID)
		return err == nil && handle.Count() > 0
	}, 5*time.Second, 20*time.Millisecond, "caller-supplied default_url must be ingested in the background")
	assert.Positive(t, fetches.Load())
}

func TestChatLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createChat(t, "alice", "support")

	var list struct {
		Chats []chatResponse `json:"chats"`
	}
	resp := f.request(t, http.MethodGet, "/api/chats", "alice", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &list)
	require.Len(t, list.Chats, 1)
	assert.Equal(t, id, list.Chats[0].ChatID)
	assert.Equal(t, "support", list.Chats[0].Name)

	resp = f.request(t, http.MethodDelete, "/api/chats/"+id, "alice", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodGet, "/api/chats/"+id+"/messages", "alice", nil, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOwnerIsolationOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createChat(t, "alice", "private")

	resp := f.request(t, http.MethodGet, "/api/chats/"+id+"/messages", "bob", nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodDelete, "/api/chats/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	var list struct {
		Chats []chatResponse `json:"chats"`
	}
	resp = f.request(t, http.MethodGet, "/api/chats", "bob", nil, "")
	decodeJSON(t, resp, &list)
	assert.Empty(t, list.Chats, "owners must not see each other's chats")
}

func TestInvalidChatID(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodGet, "/api/chats/not-a-uuid/messages", "alice", nil, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadDocument(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createChat(t, "alice", "docs")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "manual.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("The reset button is under the battery cover."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := f.request(t, http.MethodPost, "/api/chats/"+id+"/documents", "alice", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		Source      string `json:"source"`
		ChunksAdded int    `json:"chunks_added"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "manual.txt", body.Source)
	assert.Equal(t, 1, body.ChunksAdded)
}

func TestUploadUnsupportedFormat(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createChat(t, "alice", "docs")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "image.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := f.request(t, http.MethodPost, "/api/chats/"+id+"/documents", "alice", &buf, mw.FormDataContentType())
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestUploadOversizedDocument(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createChat(t, "alice", "docs")

	// Fixture cap is 1 MiB plus framing headroom; 3 MiB must be
	// rejected without ingesting anything.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "huge.txt")
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte("x"), 3<<20))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := f.request(t, http.MethodPost, "/api/chats/"+id+"/documents", "alice", &buf, mw.FormDataContentType())
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestStreamTurnOverSSE(t *testing.T) {
	f := newAPIFixture(t)
	f.llm.AddStreamedResponse("hello", "Hi ", "there!")
	id := f.createChat(t, "alice", "chat")

	resp := f.request(t, http.MethodPost, "/api/chats/"+id+"/stream", "alice",
		strings.NewReader(`{"message":"hello"}`), "application/json")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "event: chunk")
	assert.Contains(t, body, `data: {"text":"Hi "}`)
	assert.Contains(t, body, `data: {"text":"there!"}`)
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, `"response":"Hi there!"`)
	assert.NotContains(t, body, "event: error")

	var history struct {
		Messages []messageResponse `json:"messages"`
	}
	hresp := f.request(t, http.MethodGet, "/api/chats/"+id+"/messages", "alice", nil, "")
	decodeJSON(t, hresp, &history)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "Hi there!", history.Messages[1].Content)
}

func TestStreamTurnErrorEvent(t *testing.T) {
	f := newAPIFixture(t)
	f.llm.AddError("boom", assert.AnError)
	id := f.createChat(t, "alice", "chat")

	resp := f.request(t, http.MethodPost, "/api/chats/"+id+"/stream", "alice",
		strings.NewReader(`{"message":"boom"}`), "application/json")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, "generation_failed")
	assert.NotContains(t, body, "event: done")
}

func TestStreamTurnUnknownChat(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/chats/"+uuid.NewString()+"/stream", "alice",
		strings.NewReader(`{"message":"hi"}`), "application/json")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClearChatOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.llm.AddResponse("hi", "hello back")
	id := f.createChat(t, "alice", "chat")

	resp := f.request(t, http.MethodPost, "/api/chats/"+id+"/stream", "alice",
		strings.NewReader(`{"message":"hi"}`), "application/json")
	_, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	resp = f.request(t, http.MethodPost, "/api/chats/"+id+"/clear", "alice", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	var history struct {
		Messages []messageResponse `json:"messages"`
	}
	hresp := f.request(t, http.MethodGet, "/api/chats/"+id+"/messages", "alice", nil, "")
	decodeJSON(t, hresp, &history)
	assert.Empty(t, history.Messages)

	// The chat itself survives clearing.
	var list struct {
		Chats []chatResponse `json:"chats"`
	}
	lresp := f.request(t, http.MethodGet, "/api/chats", "alice", nil, "")
	decodeJSON(t, lresp, &list)
	assert.Len(t, list.Chats, 1)
}
