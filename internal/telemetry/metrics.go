package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка автоматизации. Регистрируются в prometheus.DefaultRegisterer
// и отдаются на /metrics через promhttp.
var (
	// HTTPRequestsTotal — количество HTTP запросов к API.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webmata_api_http_requests_total",
		Help: "Total HTTP requests handled by webmata_api",
	}, []string{"method", "status"})

	// BrowserSessionsActive — количество открытых браузерных сессий.
	BrowserSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webmata_browser_sessions_active",
		Help: "Number of live browser sessions in the registry",
	})

	// BrowserLaunchesTotal — запуски браузера по типу и результату.
	BrowserLaunchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webmata_browser_launches_total",
		Help: "Browser session launches by browser type and result",
	}, []string{"browser", "result"})

	// StepsTotal — выполненные шаги по типу действия и результату.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webmata_steps_total",
		Help: "Automation steps executed by action and result",
	}, []string{"action", "result"})

	// StepDuration — длительность выполнения шага.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webmata_step_duration_seconds",
		Help:    "Automation step duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"action"})

	// ExecutionsTotal — завершённые выполнения по виду и статусу.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webmata_executions_total",
		Help: "Finished executions by kind and final status",
	}, []string{"kind", "status"})

	// ExecutionsRunning — выполнения в процессе.
	ExecutionsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webmata_executions_running",
		Help: "Number of executions currently in flight",
	})

	// WSConnections — активные WebSocket соединения.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webmata_ws_connections",
		Help: "Number of live WebSocket connections",
	})

	// EventsPublishedTotal — события, отправленные в шину.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webmata_events_published_total",
		Help: "Engine events published to the message bus by result",
	}, []string{"result"})

	// EventsConsumedTotal — события, полученные аудитором.
	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webmata_events_consumed_total",
		Help: "Engine events consumed by the auditor by type",
	}, []string{"type"})

	// JanitorRunsTotal — запуски janitor.
	JanitorRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webmata_janitor_runs_total",
		Help: "Janitor sweeps by job and result",
	}, []string{"job", "result"})

	// JanitorRemovedTotal — объекты, удалённые janitor-ом.
	JanitorRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webmata_janitor_removed_total",
		Help: "Objects removed by the janitor by job",
	}, []string{"job"})
)

// Result возвращает метку результата для метрик.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
