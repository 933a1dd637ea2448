package editor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"

	"github.com/shaiso/Webmata/internal/domain"
)

const (
	maxSelectorLen = 500
	maxTextLen     = 10000
)

// StepValidation — результат проверки записанного шага.
type StepValidation struct {
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// ValidateStep проверяет записанный шаг.
func ValidateStep(step domain.RecordedStep) StepValidation {
	v := StepValidation{
		IsValid:     true,
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
	}
	fail := func(msg string) {
		v.Errors = append(v.Errors, msg)
		v.IsValid = false
	}

	if !step.ActionType.IsValid() {
		fail(fmt.Sprintf("unsupported action type %q", step.ActionType))
	}

	if step.TargetSelector != "" {
		if strings.TrimSpace(step.TargetSelector) == "" {
			fail("selector must not be blank")
		} else if len(step.TargetSelector) > maxSelectorLen {
			v.Warnings = append(v.Warnings, "selector is long and may be slow")
		}
	}

	if len(step.TargetText) > maxTextLen {
		v.Warnings = append(v.Warnings, "text is long, consider splitting the input")
	}

	if c := step.Coordinates; c != nil && (c.X < 0 || c.Y < 0) {
		fail("coordinates must not be negative")
	}

	if step.Timestamp <= 0 {
		fail("timestamp must be positive")
	}

	if step.TargetSelector == "" {
		switch step.ActionType {
		case domain.ActionClick:
			v.Suggestions = append(v.Suggestions, "click steps should locate the element by selector")
		case domain.ActionType:
			v.Suggestions = append(v.Suggestions, "type steps should locate the input by selector")
		}
	}
	return v
}

// SelectorType — вид селектора для ValidateSelector.
type SelectorType string

const (
	SelectorCSS   SelectorType = "css"
	SelectorXPath SelectorType = "xpath"
	SelectorID    SelectorType = "id"
	SelectorClass SelectorType = "class"
)

// SelectorValidation — результат проверки синтаксиса селектора.
type SelectorValidation struct {
	Selector    string       `json:"selector"`
	Type        SelectorType `json:"type"`
	IsValid     bool         `json:"is_valid"`
	Errors      []string     `json:"errors"`
	Warnings    []string     `json:"warnings"`
	Suggestions string       `json:"suggestions,omitempty"`
}

// ValidateSelector проверяет синтаксис селектора. Страница не открывается.
func ValidateSelector(selector string, typ SelectorType) SelectorValidation {
	if typ == "" {
		typ = SelectorCSS
	}
	v := SelectorValidation{
		Selector: selector,
		Type:     typ,
		Errors:   []string{},
		Warnings: []string{},
	}

	trimmed := strings.TrimSpace(selector)
	if trimmed == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("%s selector must not be empty", typ))
		return v
	}

	switch typ {
	case SelectorCSS:
		if strings.HasPrefix(selector, "//") || strings.HasPrefix(selector, "./") {
			v.Warnings = append(v.Warnings, "selector looks like XPath but type is css")
		} else {
			v.IsValid = true
		}
	case SelectorXPath:
		if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "./") {
			v.IsValid = true
		} else {
			v.Warnings = append(v.Warnings, "XPath should start with // or /")
		}
	case SelectorID:
		if strings.HasPrefix(selector, "#") {
			v.IsValid = true
		} else {
			v.Warnings = append(v.Warnings, "id selector should start with #")
		}
	case SelectorClass:
		if strings.HasPrefix(selector, ".") {
			v.IsValid = true
		} else {
			v.Warnings = append(v.Warnings, "class selector should start with .")
		}
	default:
		v.Errors = append(v.Errors, fmt.Sprintf("unsupported selector type %q", typ))
		return v
	}

	if err := compileSelector(selector, typ); err != nil {
		v.IsValid = false
		v.Errors = append(v.Errors, fmt.Sprintf("invalid %s selector: %v", typ, err))
	}

	if strings.HasPrefix(trimmed, "data-") {
		v.Suggestions = "data attribute selector: make sure the element has this attribute"
	}
	return v
}

// compileSelector разбирает селектор парсером. Селекторы с расширениями
// Playwright (text=..., a >> b, :has-text(...)) парсером CSS не проверяются.
func compileSelector(selector string, typ SelectorType) error {
	if typ == SelectorXPath {
		_, err := xpath.Compile(selector)
		return err
	}
	if isPlaywrightSelector(selector) {
		return nil
	}
	_, err := cascadia.Compile(selector)
	return err
}

var (
	engineSelectorRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*=`)

	playwrightPseudos = []string{":has-text(", ":text(", ":text-is(", ":text-matches(", ":visible", ":nth-match(", ":left-of(", ":right-of(", ":above(", ":below(", ":near("}
)

func isPlaywrightSelector(selector string) bool {
	if strings.Contains(selector, ">>") || engineSelectorRe.MatchString(selector) {
		return true
	}
	for _, p := range playwrightPseudos {
		if strings.Contains(selector, p) {
			return true
		}
	}
	return false
}

var xpathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^//`),
	regexp.MustCompile(`^\.`),
	regexp.MustCompile(`^/`),
	regexp.MustCompile(`^.*\[[0-9]+\]`),
	regexp.MustCompile(`^.*\[@.*\]`),
}

// XPathValidation — результат проверки XPath.
type XPathValidation struct {
	XPath             string `json:"xpath"`
	IsValid           bool   `json:"is_valid"`
	EstimatedElements string `json:"estimated_elements"`
	Error             string `json:"error,omitempty"`
}

// ValidateXPath разбирает выражение парсером XPath. Выражение, не похожее
// на путь к элементу (нет /, . или предиката), тоже считается невалидным.
func ValidateXPath(expr string) XPathValidation {
	v := XPathValidation{
		XPath:             expr,
		EstimatedElements: "single",
	}
	if strings.Contains(expr, "//") {
		v.EstimatedElements = "multiple"
	}
	if _, err := xpath.Compile(expr); err != nil {
		v.Error = err.Error()
		return v
	}
	for _, re := range xpathPatterns {
		if re.MatchString(expr) {
			v.IsValid = true
			break
		}
	}
	return v
}
