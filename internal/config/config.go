// Package config загружает конфигурацию процессов Webmata.
//
// Порядок: значения по умолчанию, затем YAML-файл из CONFIG_FILE (если
// задан), затем переменные окружения. Итог проверяется Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/repo"
	"github.com/shaiso/Webmata/internal/scheduler"
)

// ErrInvalidConfig — конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid config")

// Config — конфигурация процесса.
type Config struct {
	APIPort     int    `yaml:"api_port"`
	DatabaseURL string `yaml:"db_url"`

	// RabbitMQURL — адрес брокера. Пустой отключает шину событий в API.
	RabbitMQURL string `yaml:"rabbitmq_url"`

	MigrateOnStart bool `yaml:"migrate_on_start"`

	// AllowedOrigins — источники, которым разрешён CORS. "*" — любые.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Browser BrowserConfig `yaml:"browser"`

	// MaxConcurrentTasks — параллельность batch, 0 — без ограничения.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// TaskTimeout — дедлайн выполнения задачи, 0 — без дедлайна.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	CompletionMinSuccessRatio float64       `yaml:"completion_min_success_ratio"`
	PreviewDelay              time.Duration `yaml:"preview_delay"`

	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	EditorSessionTTL   time.Duration `yaml:"editor_session_ttl"`
	EditorRetention    time.Duration `yaml:"editor_retention"`
	RecordRetention    time.Duration `yaml:"record_retention"`
	CleanupCron        string        `yaml:"cleanup_cron"`
}

// BrowserConfig — параметры браузера по умолчанию.
type BrowserConfig struct {
	Type              string `yaml:"type"`
	Headless          bool   `yaml:"headless"`
	Timeout           int    `yaml:"timeout"`
	WindowSize        string `yaml:"window_size"`
	PlaywrightInstall bool   `yaml:"playwright_install"`

	// PublicWSURL — база control_url, отдаваемого клиентам.
	PublicWSURL string `yaml:"public_ws_url"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		APIPort:        8000,
		DatabaseURL:    repo.DefaultDSN,
		MigrateOnStart: true,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
		Browser: BrowserConfig{
			Type:        string(domain.BrowserChromium),
			Headless:    true,
			Timeout:     domain.DefaultStepTimeout,
			WindowSize:  domain.DefaultWindowSize,
			PublicWSURL: "ws://localhost:8000/ws",
		},
		MaxConcurrentTasks: 5,
		PreviewDelay:       2 * time.Second,
		SessionIdleTimeout: scheduler.DefaultSessionIdle,
		EditorSessionTTL:   time.Hour,
		EditorRetention:    scheduler.DefaultEditorRetention,
		RecordRetention:    scheduler.DefaultRecordRetention,
		CleanupCron:        scheduler.DefaultSpec,
	}
}

// Load читает конфигурацию из CONFIG_FILE и окружения процесса.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"), os.Getenv)
}

// LoadFrom читает YAML-файл path (если задан) и применяет переменные из getenv.
func LoadFrom(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	e := envReader{getenv: getenv}

	e.setInt("API_PORT", &c.APIPort)
	e.setStr("DB_URL", &c.DatabaseURL)
	e.setStr("RABBITMQ_URL", &c.RabbitMQURL)
	e.setBool("MIGRATE_ON_START", &c.MigrateOnStart)
	e.setList("ALLOWED_ORIGINS", &c.AllowedOrigins)

	e.setStr("BROWSER_TYPE", &c.Browser.Type)
	e.setBool("BROWSER_HEADLESS", &c.Browser.Headless)
	e.setInt("BROWSER_TIMEOUT", &c.Browser.Timeout)
	e.setStr("WINDOW_SIZE", &c.Browser.WindowSize)
	e.setBool("PLAYWRIGHT_INSTALL", &c.Browser.PlaywrightInstall)
	e.setStr("PUBLIC_WS_URL", &c.Browser.PublicWSURL)

	e.setInt("MAX_CONCURRENT_TASKS", &c.MaxConcurrentTasks)
	e.setDuration("TASK_TIMEOUT", &c.TaskTimeout)
	e.setFloat("COMPLETION_MIN_SUCCESS_RATIO", &c.CompletionMinSuccessRatio)
	e.setDuration("PREVIEW_DELAY", &c.PreviewDelay)

	e.setDuration("SESSION_IDLE_TIMEOUT", &c.SessionIdleTimeout)
	e.setDuration("EDITOR_SESSION_TTL", &c.EditorSessionTTL)
	e.setDuration("EDITOR_RETENTION", &c.EditorRetention)
	e.setDuration("RECORD_RETENTION", &c.RecordRetention)
	e.setStr("CLEANUP_CRON", &c.CleanupCron)

	return errors.Join(e.errs...)
}

// Validate проверяет значения.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.APIPort > 0 && c.APIPort < 65536, "api_port %d out of range", c.APIPort)
	check(c.MaxConcurrentTasks >= 0, "max_concurrent_tasks must not be negative")
	check(c.TaskTimeout >= 0, "task_timeout must not be negative")
	check(c.CompletionMinSuccessRatio >= 0 && c.CompletionMinSuccessRatio <= 1,
		"completion_min_success_ratio %v not in [0, 1]", c.CompletionMinSuccessRatio)
	check(c.PreviewDelay >= 0, "preview_delay must not be negative")
	check(c.Browser.Timeout > 0, "browser timeout must be positive")

	if _, err := domain.ParseBrowserType(c.Browser.Type); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	if _, _, err := domain.ParseWindowSize(c.Browser.WindowSize); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	if err := scheduler.ValidateCronExpr(c.CleanupCron); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	return errors.Join(errs...)
}

// Addr возвращает адрес HTTP сервера.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.APIPort)
}

// BrowserDefaults возвращает конфигурацию браузера по умолчанию для реестра.
func (c Config) BrowserDefaults() domain.BrowserConfig {
	bt, _ := domain.ParseBrowserType(c.Browser.Type)
	headless := c.Browser.Headless
	return domain.BrowserConfig{
		BrowserType: bt,
		Headless:    &headless,
		WindowSize:  c.Browser.WindowSize,
		Timeout:     c.Browser.Timeout,
	}
}

// OrchestratorMaxConcurrent переводит MaxConcurrentTasks в значение
// orchestrator.Config: 0 (без ограничения) становится -1.
func (c Config) OrchestratorMaxConcurrent() int {
	if c.MaxConcurrentTasks == 0 {
		return -1
	}
	return c.MaxConcurrentTasks
}

// OrchestratorPreviewDelay переводит PreviewDelay в значение
// orchestrator.Config: 0 (без паузы) становится -1.
func (c Config) OrchestratorPreviewDelay() time.Duration {
	if c.PreviewDelay == 0 {
		return -1
	}
	return c.PreviewDelay
}

// envReader применяет непустые переменные окружения и копит ошибки разбора.
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, value, err))
}

func (e *envReader) setStr(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

// setList разбирает список через запятую, пустые элементы отбрасываются.
func (e *envReader) setList(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e *envReader) setInt(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) setFloat(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) setBool(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

// setDuration принимает "90s", "5m" или целое число секунд.
func (e *envReader) setDuration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

// ParseDuration разбирает длительность Go или целое число секунд.
func ParseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
