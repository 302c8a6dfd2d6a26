package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/cbo-bro-backend/internal/config"
)

func testConfig(url string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:      "sk-test",
		BaseURL:     url,
		Model:       "claude-test",
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     2 * time.Second,
	}
}

func TestComplete_SendsRequestAndReturnsText(t *testing.T) {
	var got messagesRequest
	var headers http.Header
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		headers = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"Let's crush it"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL + "/"))
	history := []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "yo"}}
	out, err := c.Complete(context.Background(), history, "how do I grow?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Let's crush it" {
		t.Fatalf("text = %q", out)
	}

	if path != "/v1/messages" {
		t.Fatalf("path = %q", path)
	}
	if headers.Get("x-api-key") != "sk-test" || headers.Get("anthropic-version") != APIVersion {
		t.Fatalf("missing auth headers: %v", headers)
	}
	if got.Model != "claude-test" || got.MaxTokens != 4096 || got.Temperature != 0.7 || got.System != Persona {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[2].Role != RoleUser || got.Messages[2].Content != "how do I grow?" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if len(history) != 2 {
		t.Fatalf("history must not be modified")
	}
}

func TestComplete_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"non-2xx", http.StatusTooManyRequests, `{"error":"slow down"}`, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Code == http.StatusTooManyRequests && strings.Contains(se.Body, "slow down")
		}},
		{"empty content", http.StatusOK, `{"content":[]}`, func(err error) bool { return errors.Is(err, ErrEmptyResponse) }},
		{"bad json", http.StatusOK, `not json`, func(err error) bool { return err != nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(testConfig(srv.URL)).Complete(context.Background(), nil, "x")
			if !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestComplete_MissingCredential(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.APIKey = "  "
	if _, err := New(cfg).Complete(context.Background(), nil, "x"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestComplete_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(testConfig(url)).Complete(context.Background(), nil, "x")
	if err == nil {
		t.Fatalf("expected network error")
	}
	var se *StatusError
	if errors.As(err, &se) || errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("network failure mis-typed: %v", err)
	}
}

func TestWithSystemPrompt(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	if _, err := New(testConfig(srv.URL), WithSystemPrompt("be brief")).Complete(context.Background(), nil, "x"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.System != "be brief" {
		t.Fatalf("system = %q", got.System)
	}
}

func TestWithRestyClient_UsesProvidedClient(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	rc := resty.New().SetHeader("User-Agent", "cbo-bro-test")
	c := New(testConfig(srv.URL), WithRestyClient(rc))
	if c.http != rc {
		t.Fatalf("expected the provided resty client")
	}

	out, err := c.Complete(context.Background(), nil, "hi")
	if err != nil || out != "ok" {
		t.Fatalf("Complete = %q, %v", out, err)
	}
	if ua != "cbo-bro-test" {
		t.Fatalf("User-Agent = %q", ua)
	}
	if rc.BaseURL != srv.URL || rc.Header.Get("anthropic-version") != APIVersion {
		t.Fatalf("New must configure the provided client: base=%q", rc.BaseURL)
	}
}
