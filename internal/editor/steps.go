package editor

import (
	"fmt"
	"maps"
	"time"

	"github.com/shaiso/Webmata/internal/domain"
)

// ExportFormat — формат выгрузки записи.
type ExportFormat string

const (
	// FormatJSON — записанные шаги как есть.
	FormatJSON ExportFormat = "json"

	// FormatAutomation — шаги задачи, готовые к созданию.
	FormatAutomation ExportFormat = "automation"
)

// Export — выгрузка записанных шагов.
type Export struct {
	Format     ExportFormat `json:"format"`
	SessionID  string       `json:"session_id"`
	ExportTime time.Time    `json:"export_time"`
	StepCount  int          `json:"step_count"`
	Steps      any          `json:"steps"`
}

// ToAutomationSteps преобразует записанные шаги в шаги задачи по порядку.
func ToAutomationSteps(taskID int64, recorded []domain.RecordedStep) []domain.AutomationStep {
	steps := make([]domain.AutomationStep, 0, len(recorded))
	for i, r := range recorded {
		steps = append(steps, r.ToAutomationStep(taskID, i))
	}
	return steps
}

func buildExport(sessionID string, format ExportFormat, recorded []domain.RecordedStep, now time.Time) *Export {
	out := &Export{
		Format:     format,
		SessionID:  sessionID,
		ExportTime: now,
		StepCount:  len(recorded),
		Steps:      recorded,
	}
	if format != FormatAutomation {
		return out
	}

	steps := make([]domain.AutomationStep, 0, len(recorded))
	for i, r := range recorded {
		steps = append(steps, domain.AutomationStep{
			StepName:       fmt.Sprintf("Step %d", i+1),
			StepOrder:      i,
			ActionType:     r.ActionType,
			TargetSelector: r.TargetSelector,
			TargetText:     r.TargetText,
			TargetURL:      r.TargetURL,
			Parameters:     map[string]any{"recorded_data": r},
			WaitTime:       r.WaitAfter * 1000,
			Timeout:        domain.DefaultStepTimeout,
		})
	}
	out.Steps = steps
	return out
}

// Analytics — сводка по записанным шагам сессии.
type Analytics struct {
	SessionID              string                    `json:"session_id"`
	TotalSteps             int                       `json:"total_steps"`
	ActionTypeDistribution map[domain.ActionKind]int `json:"action_type_distribution"`

	// SessionDuration — разница между последним и первым timestamp шагов, секунды.
	SessionDuration float64   `json:"session_duration"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
}

func analyze(s *domain.EditorSession) *Analytics {
	a := &Analytics{
		SessionID:              s.SessionID,
		TotalSteps:             len(s.RecordedSteps),
		ActionTypeDistribution: make(map[domain.ActionKind]int),
		CreatedAt:              s.CreatedAt,
		LastActivity:           s.LastActivity,
	}

	var first, last float64
	for i, step := range s.RecordedSteps {
		a.ActionTypeDistribution[step.ActionType]++
		if i == 0 || step.Timestamp < first {
			first = step.Timestamp
		}
		if i == 0 || step.Timestamp > last {
			last = step.Timestamp
		}
	}
	a.SessionDuration = last - first
	return a
}

// OptimizeSteps сокращает запись:
//   - подряд идущие wait склеиваются в один, wait_time суммируется
//   - подряд идущие scroll склеиваются в один, scroll_y суммируется
//
// Входной срез не меняется.
func OptimizeSteps(steps []domain.RecordedStep) []domain.RecordedStep {
	out := make([]domain.RecordedStep, 0, len(steps))

	for _, step := range steps {
		cur := step
		cur.Parameters = maps.Clone(step.Parameters)

		if len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.ActionType == cur.ActionType {
				switch cur.ActionType {
				case domain.ActionWait:
					sumParam(prev, cur, "wait_time")
					continue
				case domain.ActionScroll:
					sumParam(prev, cur, "scroll_y")
					continue
				}
			}
		}
		out = append(out, cur)
	}
	return out
}

func sumParam(prev *domain.RecordedStep, cur domain.RecordedStep, key string) {
	if prev.Parameters == nil {
		prev.Parameters = make(map[string]any)
	}
	a, _ := domain.ToFloat(prev.Parameters[key])
	b, _ := domain.ToFloat(cur.Parameters[key])
	prev.Parameters[key] = a + b
}
