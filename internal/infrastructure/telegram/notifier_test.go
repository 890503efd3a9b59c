package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ThesisScout/internal/config"
)

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	type call struct {
		path, chat, text, mode string
	}
	calls := make(chan call, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		calls <- call{r.URL.Path, r.PostForm.Get("chat_id"), r.PostForm.Get("text"), r.PostForm.Get("parse_mode")}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "123:abc", ChatID: "42"}, WithAPIBase(server.URL+"/"))
	if err := n.PublishDigest(context.Background(), "*New matches*"); err != nil {
		t.Fatalf("PublishDigest error: %v", err)
	}

	got := <-calls
	if got.path != "/bot123:abc/sendMessage" || got.chat != "42" || got.text != "*New matches*" || got.mode != "Markdown" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestPublishDigestErrors(t *testing.T) {
	t.Parallel()

	if err := NewNotifier(config.TelegramConfig{}).PublishDigest(context.Background(), "x"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	err := NewNotifier(config.TelegramConfig{BotToken: "t", ChatID: "c"}, WithAPIBase(server.URL)).PublishDigest(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected telegram error, got %v", err)
	}
}
