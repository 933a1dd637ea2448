package render

import (
	"errors"
	"testing"

	"github.com/shaiso/Webmata/internal/domain"
)

// --- String Tests ---

func TestString(t *testing.T) {
	ctx := NewContext(map[string]any{"query": "golang", "count": 3, "empty": ""})
	ctx.AddStep("read price", map[string]any{"text": "42 USD"})
	ctx.Steps["price"] = map[string]any{"text": "42 USD"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "#search", "#search"},
		{"param", "{{ .Params.query }}", "golang"},
		{"number", "n={{ .Params.count }}", "n=3"},
		{"step data", "{{ .Steps.price.text }}", "42 USD"},
		{"step with space", `{{ index .Steps "read price" "text" }}`, "42 USD"},
		{"missing param", "[{{ .Params.nope }}]", "[]"},
		{"default", `{{ .Params.empty | default "x" }}`, "x"},
		{"upper", "{{ upper .Params.query }}", "GOLANG"},
		{"urlquery", "https://s.test/?q={{ urlquery .Params.query }}", "https://s.test/?q=golang"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(tt.in, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestString_ParseError(t *testing.T) {
	_, err := String("{{ .Params.query", NewContext(nil))
	if !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}
}

func TestString_RenderError(t *testing.T) {
	_, err := String("{{ index .Params.query 5 }}", NewContext(map[string]any{"query": 1}))
	if !errors.Is(err, ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender, got %v", err)
	}
}

// --- Step Tests ---

func TestStep(t *testing.T) {
	ctx := NewContext(map[string]any{"user": "alice", "lang": "kz"})
	step := domain.AutomationStep{
		StepName:       "fill",
		ActionType:     domain.ActionType,
		TargetSelector: "#{{ .Params.lang }}-login",
		TargetText:     "{{ .Params.user }}",
		TargetURL:      "https://example.com",
		Parameters: map[string]any{
			"values": []any{"{{ .Params.lang }}", "ru"},
			"delay":  float64(100),
		},
	}

	got, err := Step(step, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TargetSelector != "#kz-login" || got.TargetText != "alice" {
		t.Errorf("unexpected step: %+v", got)
	}
	values := got.Parameters["values"].([]any)
	if values[0] != "kz" || values[1] != "ru" {
		t.Errorf("unexpected values %v", values)
	}
	if got.Parameters["delay"] != float64(100) {
		t.Errorf("non-string parameter changed: %v", got.Parameters["delay"])
	}

	if step.TargetText != "{{ .Params.user }}" {
		t.Error("source step must not be modified")
	}
	if step.Parameters["values"].([]any)[0] != "{{ .Params.lang }}" {
		t.Error("source parameters must not be modified")
	}
}

func TestStep_ErrorNamesField(t *testing.T) {
	step := domain.AutomationStep{TargetURL: "{{ .Params.x"}

	_, err := Step(step, NewContext(nil))
	if err == nil || !errors.Is(err, ErrTemplateParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if got := err.Error(); got[:len("target_url")] != "target_url" {
		t.Errorf("error should name the field: %q", got)
	}
}

func TestContext_AddStep(t *testing.T) {
	ctx := NewContext(nil)
	ctx.AddStep("", map[string]any{"a": 1})
	ctx.AddStep("s", nil)

	if len(ctx.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(ctx.Steps))
	}
	if ctx.Steps["s"] == nil {
		t.Error("data should not be nil")
	}
}
