package orchestrator

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Webmata/internal/domain"
)

// historySize — сколько завершённых выполнений хранится для History.
const historySize = 200

// RunState — состояние одного выполнения задачи в памяти.
//
// Создаётся при захвате задачи и удаляется после финализации.
// Содержит запись о выполнении, итоги шагов и токен отмены.
type RunState struct {
	// TaskID — выполняемая задача.
	TaskID int64

	// ExecutionID — идентификатор выполнения.
	ExecutionID string

	// SessionID — браузерная сессия выполнения (после запуска).
	SessionID string

	record   *domain.ExecutionRecord
	outcomes []domain.StepOutcome

	succeeded int
	failed    int

	// cancel закрывается при остановке задачи пользователем.
	cancel     chan struct{}
	cancelOnce sync.Once
	reason     string

	mu sync.RWMutex
}

// NewRunState создаёт RunState с записью в статусе running.
func NewRunState(taskID int64, executionID string) *RunState {
	return &RunState{
		TaskID:      taskID,
		ExecutionID: executionID,
		record: &domain.ExecutionRecord{
			ExecutionID: executionID,
			Kind:        domain.ExecutionKindTask,
			TaskIDs:     []int64{taskID},
			Status:      domain.ExecutionStatusRunning,
			StartedAt:   time.Now(),
		},
		cancel: make(chan struct{}),
	}
}

// Cancel сигнализирует выполнению остановиться на ближайшей границе шага.
func (s *RunState) Cancel(reason string) {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.cancel)
	})
}

// IsCancelled проверяет, запрошена ли отмена.
func (s *RunState) IsCancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// CancelReason возвращает причину отмены.
func (s *RunState) CancelReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// SetTotalSteps задаёт количество шагов.
func (s *RunState) SetTotalSteps(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.TotalSteps = n
}

// MarkStepStarted отмечает начало шага с индексом i.
func (s *RunState) MarkStepStarted(i int, step *domain.AutomationStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.CurrentStep = i
	s.record.CurrentStepName = step.StepName
}

// MarkStepFinished добавляет итог шага.
func (s *RunState) MarkStepFinished(outcome domain.StepOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = append(s.outcomes, outcome)
	if outcome.Success {
		s.succeeded++
	} else {
		s.failed++
	}
	s.record.CurrentStep = len(s.outcomes)
}

// Counts возвращает количество успешных и упавших шагов.
func (s *RunState) Counts() (succeeded, failed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.succeeded, s.failed
}

// Outcomes возвращает копию итогов шагов.
func (s *RunState) Outcomes() []domain.StepOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.StepOutcome(nil), s.outcomes...)
}

// Record возвращает копию записи о выполнении.
func (s *RunState) Record() domain.ExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Clone()
}

// Finish переводит запись в финальный статус.
func (s *RunState) Finish(status domain.ExecutionStatus, errMsg string) domain.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.MarkFinished(status, errMsg)
	return s.record.Clone()
}

// --- Активные выполнения и записи ---

// isActive проверяет, есть ли у задачи выполнение в процессе.
func (o *Orchestrator) isActive(taskID int64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.active[taskID]
	return exists
}

// getActive возвращает RunState задачи.
func (o *Orchestrator) getActive(taskID int64) *RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active[taskID]
}

// addActive регистрирует выполнение.
func (o *Orchestrator) addActive(state *RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[state.TaskID]; exists {
		return ErrTaskAlreadyRunning
	}
	o.active[state.TaskID] = state
	return nil
}

// removeActive удаляет выполнение и переносит его запись в историю.
func (o *Orchestrator) removeActive(state *RunState, record domain.ExecutionRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cur, ok := o.active[state.TaskID]; ok && cur == state {
		delete(o.active, state.TaskID)
	}
	o.pushHistory(record)
}

// ActiveCount возвращает количество выполняющихся задач.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// putRecord сохраняет запись batch или preview.
func (o *Orchestrator) putRecord(rec *domain.ExecutionRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records[rec.ExecutionID] = rec
}

// updateRecord изменяет запись под блокировкой.
func (o *Orchestrator) updateRecord(id string, fn func(rec *domain.ExecutionRecord)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.records[id]; ok {
		fn(rec)
	}
}

// pushHistory добавляет завершённую запись в историю. Вызывается под o.mu.
func (o *Orchestrator) pushHistory(rec domain.ExecutionRecord) {
	o.history = append(o.history, rec)
	if len(o.history) > historySize {
		o.history = o.history[len(o.history)-historySize:]
	}
}

// ExecutionStatus возвращает запись о выполнении.
//
// Завершённая запись batch удаляется после первого чтения.
// Запись одиночного выполнения доступна, пока задача выполняется.
func (o *Orchestrator) ExecutionStatus(executionID string) (domain.ExecutionRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if rec, ok := o.records[executionID]; ok {
		out := rec.Clone()
		if rec.Kind == domain.ExecutionKindBatch && rec.IsFinished() {
			delete(o.records, executionID)
		}
		return out, true
	}

	for _, state := range o.active {
		if state.ExecutionID == executionID {
			return state.Record(), true
		}
	}

	return domain.ExecutionRecord{}, false
}

// History возвращает записи о выполнениях, новые первыми.
// Завершённые одиночные выполнения берутся из кольцевой истории.
func (o *Orchestrator) History(limit int) []domain.ExecutionRecord {
	o.mu.RLock()
	out := make([]domain.ExecutionRecord, 0, len(o.active)+len(o.records)+len(o.history))
	seen := make(map[string]bool)
	for _, state := range o.active {
		rec := state.Record()
		seen[rec.ExecutionID] = true
		out = append(out, rec)
	}
	for _, rec := range o.records {
		seen[rec.ExecutionID] = true
		out = append(out, rec.Clone())
	}
	for _, rec := range o.history {
		if !seen[rec.ExecutionID] {
			out = append(out, rec.Clone())
		}
	}
	o.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Prune удаляет завершённые записи batch и preview старше maxAge.
// Возвращает количество удалённых записей.
func (o *Orchestrator) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	for id, rec := range o.records {
		if rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			delete(o.records, id)
			removed++
		}
	}

	kept := o.history[:0]
	for _, rec := range o.history {
		if rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	o.history = kept

	return removed
}

// StopExecution останавливает выполнение по идентификатору.
//
// Для batch останавливаются все задачи, выполняющиеся в нём.
// Возвращает false, если выполнение неизвестно или уже завершено.
func (o *Orchestrator) StopExecution(executionID string) bool {
	o.mu.Lock()
	var targets []*RunState

	if rec, ok := o.records[executionID]; ok {
		if rec.IsFinished() {
			o.mu.Unlock()
			return false
		}
		if rec.Kind == domain.ExecutionKindBatch {
			o.stoppedBatches[executionID] = true
		}
		prefix := executionID + "_task_"
		for _, state := range o.active {
			if state.ExecutionID == executionID || strings.HasPrefix(state.ExecutionID, prefix) {
				targets = append(targets, state)
			}
		}
		if rec.Kind == domain.ExecutionKindPreview {
			if cancel, ok := o.previews[executionID]; ok {
				cancel()
			}
		}
	} else {
		for _, state := range o.active {
			if state.ExecutionID == executionID {
				targets = append(targets, state)
			}
		}
		if len(targets) == 0 {
			o.mu.Unlock()
			return false
		}
	}
	o.mu.Unlock()

	for _, state := range targets {
		o.cancelRun(state, "execution stopped")
	}

	o.logger.Info("execution stop requested",
		"execution_id", executionID,
		"tasks", len(targets),
	)
	return true
}

// isBatchStopped проверяет, остановлен ли batch.
func (o *Orchestrator) isBatchStopped(batchID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stoppedBatches[batchID]
}
