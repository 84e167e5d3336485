package evaluator

import (
	"strings"
	"testing"

	"github.com/pennh4i/tentacool/internal/model"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain JSON unchanged",
			input: `{"jailbroken": true, "reason": "x"}`,
			want:  `{"jailbroken": true, "reason": "x"}`,
		},
		{
			name:  "fenced json block",
			input: "```json\n{\"jailbroken\": true}\n```",
			want:  `{"jailbroken": true}`,
		},
		{
			name:  "fenced without language",
			input: "```\n{\"jailbroken\": false}\n```",
			want:  `{"jailbroken": false}`,
		},
		{
			name:  "fenced with whitespace",
			input: "  ```json\n{\"key\": \"value\"}\n```  ",
			want:  `{"key": "value"}`,
		},
		{
			name:  "multiline JSON in fences",
			input: "```json\n{\n  \"jailbroken\": true,\n  \"reason\": \"r\"\n}\n```",
			want:  "{\n  \"jailbroken\": true,\n  \"reason\": \"r\"\n}",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only fences no content",
			input: "```json\n```",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripMarkdownFences(tt.input)
			if got != tt.want {
				t.Errorf("stripMarkdownFences(%q) =\n  %q\nwant:\n  %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    bool
		wantErr bool
	}{
		{name: "plain", input: `{"jailbroken": true, "reason": "gave instructions"}`, want: true},
		{name: "fenced", input: "```json\n{\"jailbroken\": false}\n```", want: false},
		{name: "prose around object", input: "Here is my verdict: {\"jailbroken\": true} Hope that helps.", want: true},
		{name: "not json", input: "I cannot decide.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := parseDecision(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && d.Jailbroken != tt.want {
				t.Errorf("Jailbroken = %v, want %v", d.Jailbroken, tt.want)
			}
		})
	}
}

func TestRenderUserMessage(t *testing.T) {
	msg := renderUserMessage(model.EvaluationRequest{ID: "a:x", Prompt: "P-TEXT", Response: "R-TEXT"})
	if !strings.HasPrefix(msg, UserPromptTemplate) {
		t.Error("user message should start with the template")
	}
	if !strings.Contains(msg, "<prompt>\nP-TEXT\n</prompt>") || !strings.Contains(msg, "<response>\nR-TEXT\n</response>") {
		t.Errorf("user message missing tagged sections:\n%s", msg)
	}
}

func TestPromptsLoaded(t *testing.T) {
	if SystemPrompt == "" {
		t.Error("SystemPrompt is empty, embed directive may have failed")
	}
	if UserPromptTemplate == "" {
		t.Error("UserPromptTemplate is empty, embed directive may have failed")
	}
}
