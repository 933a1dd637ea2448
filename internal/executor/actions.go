package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Webmata/internal/browser"
	"github.com/shaiso/Webmata/internal/domain"
)

// scrollViewport — прокрутка на высоту окна.
const scrollViewport = "() => window.scrollBy(0, window.innerHeight)"

// scrollBy — прокрутка на заданное смещение.
const scrollBy = "([x, y]) => window.scrollBy(x, y)"

// actionErr оборачивает ошибку страницы. ErrElementNotFound сохраняется как есть.
func actionErr(action domain.ActionKind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrElementNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrActionFailed, action, err)
}

func requireSelector(step *domain.AutomationStep) error {
	if step.TargetSelector == "" {
		return fmt.Errorf("%w: target_selector is required for %s", ErrMissingParameter, step.ActionType)
	}
	return nil
}

func click(page browser.Page, step *domain.AutomationStep, timeout time.Duration) (map[string]any, error) {
	if err := requireSelector(step); err != nil {
		return nil, err
	}
	if err := page.Click(step.TargetSelector, timeout); err != nil {
		return nil, actionErr(step.ActionType, err)
	}
	return map[string]any{"selector": step.TargetSelector}, nil
}

func hover(page browser.Page, step *domain.AutomationStep, timeout time.Duration) (map[string]any, error) {
	if err := requireSelector(step); err != nil {
		return nil, err
	}
	if err := page.Hover(step.TargetSelector, timeout); err != nil {
		return nil, actionErr(step.ActionType, err)
	}
	return map[string]any{"selector": step.TargetSelector}, nil
}

func typeText(page browser.Page, step *domain.AutomationStep, timeout time.Duration) (map[string]any, error) {
	if err := requireSelector(step); err != nil {
		return nil, err
	}
	if step.TargetText == "" {
		return nil, fmt.Errorf("%w: target_text is required for type", ErrMissingParameter)
	}
	if err := page.Fill(step.TargetSelector, step.TargetText, timeout); err != nil {
		return nil, actionErr(step.ActionType, err)
	}
	return map[string]any{
		"selector":    step.TargetSelector,
		"text_length": len([]rune(step.TargetText)),
	}, nil
}

// selectValues возвращает значения для select: target_text, parameters.values или parameters.value.
func selectValues(step *domain.AutomationStep) []string {
	if step.TargetText != "" {
		return []string{step.TargetText}
	}
	if values := step.ParamStrings("values"); len(values) > 0 {
		return values
	}
	return step.ParamStrings("value")
}

func selectOption(page browser.Page, step *domain.AutomationStep, timeout time.Duration) (map[string]any, error) {
	if err := requireSelector(step); err != nil {
		return nil, err
	}
	values := selectValues(step)
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: option value is required for select", ErrMissingParameter)
	}
	selected, err := page.SelectOption(step.TargetSelector, values, timeout)
	if err != nil {
		return nil, actionErr(step.ActionType, err)
	}
	return map[string]any{
		"selector": step.TargetSelector,
		"selected": selected,
	}, nil
}

// scrollDelta возвращает смещение из parameters.scroll_x/scroll_y (или x/y).
func scrollDelta(step *domain.AutomationStep) (x, y float64, ok bool) {
	read := func(keys ...string) (float64, bool) {
		for _, k := range keys {
			if v, found := step.Parameters[k]; found {
				if f, isNum := domain.ToFloat(v); isNum {
					return f, true
				}
			}
		}
		return 0, false
	}

	x, okX := read("scroll_x", "x")
	y, okY := read("scroll_y", "y")
	return x, y, okX || okY
}

func scroll(page browser.Page, step *domain.AutomationStep) (map[string]any, error) {
	x, y, explicit := scrollDelta(step)
	if !explicit {
		if _, err := page.Evaluate(scrollViewport); err != nil {
			return nil, actionErr(step.ActionType, err)
		}
		return map[string]any{"mode": "viewport"}, nil
	}

	if _, err := page.Evaluate(scrollBy, []any{x, y}); err != nil {
		return nil, actionErr(step.ActionType, err)
	}
	return map[string]any{"mode": "delta", "scroll_x": x, "scroll_y": y}, nil
}

// wait ждёт parameters.wait_time, иначе timeout шага. Единица — секунды.
func wait(ctx context.Context, step *domain.AutomationStep) (map[string]any, error) {
	d := step.WaitDuration()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return map[string]any{"waited_seconds": d.Seconds()}, nil
}

func navigate(page browser.Page, step *domain.AutomationStep, timeout time.Duration) (map[string]any, error) {
	if step.TargetURL == "" {
		return nil, fmt.Errorf("%w: target_url is required for navigate", ErrMissingParameter)
	}
	status, err := page.Goto(step.TargetURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigationFailed, step.TargetURL, err)
	}
	data := map[string]any{
		"url":       step.TargetURL,
		"final_url": page.URL(),
	}
	if status > 0 {
		data["status"] = status
	}
	return data, nil
}

func screenshot(page browser.Page) (map[string]any, error) {
	img, err := page.Screenshot(false)
	if err != nil {
		return nil, actionErr(domain.ActionScreenshot, err)
	}
	return map[string]any{"screenshot_size": len(img)}, nil
}

func dragDrop(page browser.Page, step *domain.AutomationStep, timeout time.Duration) (map[string]any, error) {
	if err := requireSelector(step); err != nil {
		return nil, err
	}
	target := step.Param("target_selector")
	if target == "" {
		return nil, fmt.Errorf("%w: parameters.target_selector is required for drag_drop", ErrMissingParameter)
	}
	if err := page.DragAndDrop(step.TargetSelector, target, timeout); err != nil {
		return nil, actionErr(step.ActionType, err)
	}
	return map[string]any{"source": step.TargetSelector, "target": target}, nil
}

func upload(page browser.Page, step *domain.AutomationStep, timeout time.Duration) (map[string]any, error) {
	if err := requireSelector(step); err != nil {
		return nil, err
	}
	files := step.ParamStrings("files")
	if len(files) == 0 && step.TargetText != "" {
		files = []string{step.TargetText}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: files are required for upload", ErrMissingParameter)
	}
	if err := page.SetInputFiles(step.TargetSelector, files, timeout); err != nil {
		return nil, actionErr(step.ActionType, err)
	}
	return map[string]any{"selector": step.TargetSelector, "files": len(files)}, nil
}
