package prompt

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeSubstitute(t *testing.T) {
	vars := map[string]string{"document": "DOC", "name": "N"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"braced", "<doc>${document}</doc>", "<doc>DOC</doc>"},
		{"bare", "doc: $document.", "doc: DOC."},
		{"unknown braced passes through", "keep ${other} here", "keep ${other} here"},
		{"unknown bare passes through", "keep $other here", "keep $other here"},
		{"escaped dollar", "cost $$5", "cost $5"},
		{"lone dollar", "a $ b", "a $ b"},
		{"trailing dollar", "end$", "end$"},
		{"invalid braced name", "x ${1abc} y", "x ${1abc} y"},
		{"unterminated brace", "x ${document", "x ${document"},
		{"multiple", "$name/${name}/$document", "N/N/DOC"},
		{"no placeholders", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeSubstitute(tt.in, vars); got != tt.want {
				t.Errorf("SafeSubstitute(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAssemble_DocumentWithTemplateSyntaxIsNotExpanded(t *testing.T) {
	a := New("You are a summarizer. Use ${style}.", "Summarize:\n${document}", "model-x", 512)

	doc := "price is ${price} and $document and $$"
	req := a.Assemble(doc)

	if len(req.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(req.Messages))
	}
	if req.Messages[0].Role != "user" {
		t.Errorf("role = %q, want user", req.Messages[0].Role)
	}
	if want := "Summarize:\n" + doc; req.Messages[0].Content != want {
		t.Errorf("content = %q, want %q", req.Messages[0].Content, want)
	}
	if req.System != "You are a summarizer. Use ${style}." {
		t.Errorf("system should be passed through unchanged: %q", req.System)
	}
	if req.ModelID != "model-x" || req.MaxTokens != 512 {
		t.Errorf("model/max tokens = %q/%d", req.ModelID, req.MaxTokens)
	}
}

func TestAssemble_FreshRequestPerCall(t *testing.T) {
	a := New("sys", "${document}", "m", 1)

	r1 := a.Assemble("one")
	r2 := a.Assemble("two")
	r1.Messages[0].Content = "mutated"

	if r2.Messages[0].Content != "two" {
		t.Errorf("requests share state: %q", r2.Messages[0].Content)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, SystemTemplateFile), []byte("system text"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, MessageTemplateFile), []byte("<d>${document}</d>"), 0o600); err != nil {
		t.Fatal(err)
	}

	a, err := Load(dir, "m", 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	req := a.Assemble("hello")
	if req.System != "system text" {
		t.Errorf("system = %q", req.System)
	}
	if req.Messages[0].Content != "<d>hello</d>" {
		t.Errorf("content = %q", req.Messages[0].Content)
	}
}

func TestLoad_MissingTemplate(t *testing.T) {
	if _, err := Load(t.TempDir(), "m", 10); err == nil {
		t.Fatal("expected error for missing templates")
	}
}
