package prompts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolver(t *testing.T) {
	t.Run("embedded default", func(t *testing.T) {
		r := NewResolver(nil)
		r.Register(EmbeddedPrompt{Key: "test.greeting", Text: "Hello {{.Name}}"})

		p, err := r.Resolve("test.greeting")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsOverride {
			t.Error("expected embedded prompt")
		}
		if len(p.Variables) != 1 || p.Variables[0] != "Name" {
			t.Errorf("Variables = %v", p.Variables)
		}
		if p.Hash != HashText("Hello {{.Name}}") {
			t.Error("hash mismatch")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		r := NewResolver(nil)
		if _, err := r.Resolve("missing"); err == nil {
			t.Error("expected error")
		}
		if err := r.SetOverride(Override{Key: "missing", Text: "x"}); err == nil {
			t.Error("expected error overriding unregistered key")
		}
	})

	t.Run("override from file", func(t *testing.T) {
		r := NewResolver(nil)
		r.Register(EmbeddedPrompt{Key: "test.system", Text: "default"})

		path := filepath.Join(t.TempDir(), "prompt.txt")
		if err := os.WriteFile(path, []byte("custom instructions"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := r.LoadOverrideFile("test.system", path); err != nil {
			t.Fatalf("LoadOverrideFile() error = %v", err)
		}

		p, _ := r.Resolve("test.system")
		if !p.IsOverride || p.Text != "custom instructions" || p.Source != path {
			t.Errorf("unexpected resolved prompt: %+v", p)
		}

		r.ClearOverride("test.system")
		p, _ = r.Resolve("test.system")
		if p.IsOverride {
			t.Error("expected override to be cleared")
		}
	})

	t.Run("missing and empty override files", func(t *testing.T) {
		r := NewResolver(nil)
		r.Register(EmbeddedPrompt{Key: "k", Text: "default"})

		if err := r.LoadOverrideFile("k", ""); err != nil {
			t.Errorf("empty path should be a no-op, got %v", err)
		}
		if err := r.LoadOverrideFile("k", filepath.Join(t.TempDir(), "nope.txt")); err == nil {
			t.Error("expected error for missing file")
		}

		path := filepath.Join(t.TempDir(), "blank.txt")
		os.WriteFile(path, []byte("  \n"), 0o644)
		if err := r.LoadOverrideFile("k", path); err == nil {
			t.Error("expected error for blank file")
		}
	})

	t.Run("all embedded sorted", func(t *testing.T) {
		r := NewResolver(nil)
		r.Register(EmbeddedPrompt{Key: "b", Text: "b"})
		r.Register(EmbeddedPrompt{Key: "a", Text: "a"})
		all := r.AllEmbedded()
		if len(all) != 2 || all[0].Key != "a" {
			t.Errorf("AllEmbedded() = %v", all)
		}
	})
}

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"no vars", nil},
		{"{{.Report}} and {{ .Finding }}", []string{"Finding", "Report"}},
		{"{{.Report}} twice {{.Report}}", []string{"Report"}},
		{"{{.Record.Text}}", []string{"Record.Text"}},
	}
	for _, tt := range tests {
		got := ExtractVariables(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("ExtractVariables(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ExtractVariables(%q) = %v, want %v", tt.text, got, tt.want)
			}
		}
	}
}

func TestRender(t *testing.T) {
	out, err := Render("greet", "Hello {{.Name}}", map[string]string{"Name": "world"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "Hello world" {
		t.Errorf("Render() = %q", out)
	}

	if _, err := Render("bad", "Hello {{.Name", nil); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Render("missing", "Hello {{.Name}}", map[string]string{}); err == nil {
		t.Error("expected error for missing key")
	}
}
