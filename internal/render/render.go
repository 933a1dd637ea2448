// Package render подставляет параметры задачи и результаты шагов в шаги.
//
// Поля шага (target_selector, target_text, target_url и parameters) могут
// содержать Go template выражения:
//
//	{{ .Params.query }}
//	{{ .Steps.read_price.text }}
//	{{ .Params.city | default "Almaty" }}
//
// Строки без "{{" возвращаются как есть.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/Webmata/internal/domain"
)

var (
	// ErrTemplateParse — шаблон не разобран.
	ErrTemplateParse = errors.New("template parse failed")

	// ErrTemplateRender — шаблон не выполнен.
	ErrTemplateRender = errors.New("template render failed")
)

// Context — данные, доступные шаблонам одного выполнения.
type Context struct {
	// Params — параметры задачи.
	Params map[string]any

	// Steps — данные успешных шагов по имени шага.
	Steps map[string]map[string]any
}

// NewContext создаёт контекст с параметрами задачи.
func NewContext(params map[string]any) *Context {
	if params == nil {
		params = make(map[string]any)
	}
	return &Context{
		Params: params,
		Steps:  make(map[string]map[string]any),
	}
}

// AddStep сохраняет данные шага. Шаг без имени не сохраняется.
func (c *Context) AddStep(name string, data map[string]any) {
	if name == "" {
		return
	}
	if data == nil {
		data = make(map[string]any)
	}
	c.Steps[name] = data
}

var funcs = template.FuncMap{
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	},
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			return v
		}
		return nil
	},
	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"trim":    strings.TrimSpace,
	"replace": strings.ReplaceAll,
}

// String подставляет значения в строку.
func String(s string, ctx *Context) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	t, err := template.New("").Funcs(funcs).Option("missingkey=zero").Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Value рекурсивно подставляет значения в строки внутри map и slice.
// Остальные типы возвращаются без изменений.
func Value(v any, ctx *Context) (any, error) {
	switch val := v.(type) {
	case string:
		return String(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := Value(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := Value(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// Step возвращает копию шага с подставленными значениями.
func Step(step domain.AutomationStep, ctx *Context) (domain.AutomationStep, error) {
	var err error
	if step.TargetSelector, err = String(step.TargetSelector, ctx); err != nil {
		return step, fmt.Errorf("target_selector: %w", err)
	}
	if step.TargetText, err = String(step.TargetText, ctx); err != nil {
		return step, fmt.Errorf("target_text: %w", err)
	}
	if step.TargetURL, err = String(step.TargetURL, ctx); err != nil {
		return step, fmt.Errorf("target_url: %w", err)
	}
	if step.Parameters != nil {
		p, err := Value(step.Parameters, ctx)
		if err != nil {
			return step, fmt.Errorf("parameters.%w", err)
		}
		step.Parameters = p.(map[string]any)
	}
	return step, nil
}
