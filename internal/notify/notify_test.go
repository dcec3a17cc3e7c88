package notify

import (
	"strings"
	"testing"

	"quill/api/internal/store"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port:       "587",
				From:       "quill@example.com",
				Moderators: []string{"mods@example.com"},
			},
			expected: false,
		},
		{
			name: "missing moderators",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "quill@example.com",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host:       "smtp.example.com",
				Port:       "587",
				From:       "quill@example.com",
				Moderators: []string{"mods@example.com"},
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderCommentWaitingTemplate(t *testing.T) {
	data := commentWaitingData{
		AppName:    "Quill",
		Kind:       "articles",
		CommentID:  "cmt_00112233445566778899001122334455",
		DocumentID: "doc_00112233445566778899001122334455",
		Title:      "A question",
		Body:       "Is this still accurate?",
	}

	html, err := renderTemplate(commentWaitingTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "articles") {
		t.Error("template should contain the kind name")
	}
	if !strings.Contains(html, "Is this still accurate?") {
		t.Error("template should contain the comment body")
	}
	if !strings.Contains(html, "cmt_00112233445566778899001122334455") {
		t.Error("template should contain the comment id")
	}
}

func TestCommentWaitingNoopWhenUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	// Must not attempt delivery or panic.
	svc.CommentWaiting("articles", store.Comment{ID: "cmt_1", Body: "hello"})
}
