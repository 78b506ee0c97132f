package output

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name   string            `json:"name" yaml:"name"`
	Labels map[string]string `json:"labels" yaml:"labels"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"YML", FormatYAML, false},
		{" json ", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	data := sample{Name: "Résumé <b>", Labels: map[string]string{"Edema": "Yes"}}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatJSON, data); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, `"name": "Résumé <b>"`) {
			t.Errorf("unexpected json output:\n%s", out)
		}
		if !strings.Contains(out, `"Edema": "Yes"`) {
			t.Errorf("labels missing:\n%s", out)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, FormatYAML)
		if err := p.Print(data); err != nil {
			t.Fatalf("Print() error = %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "labels:\n  Edema: ") || !strings.Contains(out, "Yes") {
			t.Errorf("unexpected yaml output:\n%s", out)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if err := Write(&bytes.Buffer{}, Format("xml"), data); err == nil {
			t.Error("expected error")
		}
	})
}
