package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"clairvoyance/internal/notifier"
	logx "clairvoyance/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    string
		limit int
		want  int
	}{
		{"short", "hello", 10, 1},
		{"exact", "0123456789", 10, 1},
		{"hard split", strings.Repeat("a", 25), 10, 3},
		{"newline split", "aaaaaaa\nbbbbbbb\nccc", 10, 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tt.in, tt.limit)
			if len(got) != tt.want {
				t.Fatalf("splitText(%q) = %q, want %d chunks", tt.in, got, tt.want)
			}
			for _, c := range got {
				if len([]rune(c)) > tt.limit {
					t.Fatalf("chunk %q exceeds limit", c)
				}
			}
		})
	}
}

func TestSenderPostsMessage(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var paths []string
	var chatIDs []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		if v, ok := body["chat_id"].(string); ok {
			chatIDs = append(chatIDs, v)
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	}))
	defer srv.Close()

	s, err := New(Config{Token: "T", APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Send(context.Background(), notifier.Message{ChatID: 42, Text: "Pidgey despawns at :15"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "/botT/sendMessage" {
		t.Fatalf("paths = %v", paths)
	}
	if len(chatIDs) != 1 || chatIDs[0] != "42" {
		t.Fatalf("chat ids = %v", chatIDs)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
}
