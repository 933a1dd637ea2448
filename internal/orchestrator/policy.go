package orchestrator

import (
	"fmt"

	"github.com/shaiso/Webmata/internal/domain"
)

// CompletionPolicy определяет финальный статус выполнения по итогам шагов.
//
// По умолчанию (MinSuccessRatio = 0) хватает одного успешного шага
// для статуса completed.
type CompletionPolicy struct {
	// MinSuccessRatio — минимальная доля успешных шагов для completed (0..1).
	MinSuccessRatio float64
}

// Decide возвращает статус и пометку для succeeded успешных и failed упавших шагов.
func (p CompletionPolicy) Decide(succeeded, failed int) (domain.TaskStatus, string) {
	total := succeeded + failed
	if total == 0 {
		return domain.TaskStatusFailed, "no steps executed"
	}
	if succeeded == 0 {
		return domain.TaskStatusFailed, "all steps failed"
	}

	ratio := float64(succeeded) / float64(total)
	if ratio < p.MinSuccessRatio {
		return domain.TaskStatusFailed, fmt.Sprintf(
			"success ratio %.2f below threshold %.2f: %d/%d steps failed",
			ratio, p.MinSuccessRatio, failed, total,
		)
	}

	if failed > 0 {
		return domain.TaskStatusCompleted, fmt.Sprintf("partial failure: %d/%d steps failed", failed, total)
	}
	return domain.TaskStatusCompleted, ""
}
