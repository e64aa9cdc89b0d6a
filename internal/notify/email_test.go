package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage("noreply@example.com", "alex@example.com", "New Connection Request", "<p>hello</p>")
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.String()

	for _, want := range []string{"alex@example.com", "noreply@example.com", "Subject: New Connection Request", "text/html"} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestBuildMessage_InvalidAddress(t *testing.T) {
	if _, err := buildMessage("noreply@example.com", "not an address", "s", "b"); err == nil {
		t.Error("expected error for invalid recipient")
	}
	if _, err := buildMessage("", "alex@example.com", "s", "b"); err == nil {
		t.Error("expected error for empty sender")
	}
}

func TestNewEmailNotifier_DefaultsFrom(t *testing.T) {
	n, err := NewEmailNotifier(EmailConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "mailer@example.com",
		Password: "secret",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEmailNotifier() error = %v", err)
	}
	if n.from != "mailer@example.com" {
		t.Errorf("from = %q", n.from)
	}
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	body := `<a href="https://example.com/api/v1/connections/accept-request/secret-token">Accept</a>`
	if err := n.Notify(context.Background(), "alex@example.com", "New Connection Request", body); err != nil {
		t.Fatal(err)
	}

	entries := logs.FilterField(zap.String("to", "alex@example.com")).All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	for key, value := range entries[0].ContextMap() {
		if s, ok := value.(string); ok && strings.Contains(s, "secret-token") {
			t.Errorf("field %q leaks the request link: %q", key, s)
		}
	}
}
