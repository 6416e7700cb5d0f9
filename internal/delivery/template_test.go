package delivery

import (
	"strings"
	"testing"
)

func TestRenderMoneyFilter(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("", `Voce ganhou {{ amount | money }} de cashback!`, map[string]any{
		"amount": int64(12345),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Voce ganhou 123.45 de cashback!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRenderDefaultFilter(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("", `Ola {{ first_name | default: "cliente" }}!`, map[string]any{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Ola cliente!" {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = r.Render("", `Ola {{ first_name | default: "cliente" }}!`, map[string]any{
		"first_name": "Maria",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Ola Maria!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRenderCaching(t *testing.T) {
	r := NewRenderer()
	const tmpl = `{{ name }}`

	if _, err := r.Render("camp-1", tmpl, map[string]any{"name": "a"}); err != nil {
		t.Fatalf("first render: %v", err)
	}
	// Cached parse wins even when a different template string is passed
	// under the same key.
	out, err := r.Render("camp-1", `{{ other }}`, map[string]any{"name": "b"})
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if out != "b" {
		t.Fatalf("expected cached template, got %q", out)
	}

	r.Invalidate("camp-1")
	out, err = r.Render("camp-1", `{{ other }}`, map[string]any{"other": "c"})
	if err != nil {
		t.Fatalf("post-invalidate render: %v", err)
	}
	if out != "c" {
		t.Fatalf("expected fresh template after invalidate, got %q", out)
	}
}

func TestValidateSyntaxError(t *testing.T) {
	r := NewRenderer()
	if err := r.Validate(`{% if x %}unclosed`); err == nil {
		t.Fatal("expected syntax error")
	}
	if err := r.Validate(`ok {{ x }}`); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
}

func TestRenderErrorFallsBackToRaw(t *testing.T) {
	r := NewRenderer()
	const bad = `{% if %}`
	out, err := r.Render("", bad, nil)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(out, "{%") {
		t.Fatalf("expected raw template fallback, got %q", out)
	}
}
