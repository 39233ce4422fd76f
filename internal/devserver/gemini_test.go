package devserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGemini(t *testing.T, status int, body string) (*httptest.Server, <-chan string) {
	t.Helper()
	prompts := make(chan string, 16)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.Unmarshal(raw, &req)
		for _, c := range req.Contents {
			for _, p := range c.Parts {
				prompts <- p.Text
			}
		}
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts, prompts
}

func TestGeminiGenerator_Generate(t *testing.T) {
	ts, prompts := fakeGemini(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Paris"}]},"finishReason":"STOP"}]}`)
	g := NewGeminiGenerator("test-key", "gemini-test")
	g.baseURL = ts.URL + "/"

	out, err := g.Generate(context.Background(), "Capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", out)
	assert.Equal(t, "Capital of France?", <-prompts)
}

func TestGeminiGenerator_APIError(t *testing.T) {
	ts, _ := fakeGemini(t, http.StatusBadRequest,
		`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	g := NewGeminiGenerator("bad-key", "gemini-test")
	g.baseURL = ts.URL + "/"

	_, err := g.Generate(context.Background(), "hi")
	assert.ErrorContains(t, err, "gemini")
}

func TestGeminiGenerator_EmptyResponse(t *testing.T) {
	ts, _ := fakeGemini(t, http.StatusOK, `{"candidates":[]}`)
	g := NewGeminiGenerator("test-key", "gemini-test")
	g.baseURL = ts.URL + "/"

	_, err := g.Generate(context.Background(), "hi")
	assert.ErrorContains(t, err, "empty response")
}

func TestNewGeminiGenerator_DefaultModel(t *testing.T) {
	assert.Equal(t, DefaultGeminiModel, NewGeminiGenerator("k", "").model)
}
