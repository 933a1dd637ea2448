package browser_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Webmata/internal/browser"
	"github.com/shaiso/Webmata/internal/browser/browsertest"
	"github.com/shaiso/Webmata/internal/domain"
)

// memStore — хранилище сессий в памяти.
type memStore struct {
	mu      sync.Mutex
	active  map[string]bool
	failAll bool
}

func newMemStore() *memStore {
	return &memStore{active: make(map[string]bool)}
}

func (s *memStore) CreateSession(_ context.Context, info domain.SessionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("db down")
	}
	s.active[info.SessionID] = info.IsActive
	return nil
}

func (s *memStore) DeactivateSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("db down")
	}
	s.active[id] = false
	return nil
}

func (s *memStore) isActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

func newRegistry(engine browser.Engine, store browser.Store) *browser.Registry {
	cfg := browser.Config{Engine: engine}
	if store != nil {
		cfg.Store = store
	}
	return browser.NewRegistry(cfg)
}

// --- Launch Tests ---

func TestRegistry_Launch(t *testing.T) {
	engine := browsertest.NewEngine()
	store := newMemStore()
	reg := newRegistry(engine, store)

	res, err := reg.Launch(context.Background(), domain.BrowserConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.SessionID == "" {
		t.Fatal("session id should be generated")
	}
	if res.BrowserType != domain.BrowserChromium {
		t.Errorf("expected chromium, got %s", res.BrowserType)
	}
	if res.ControlURL != "ws://localhost:8000/ws/"+res.SessionID {
		t.Errorf("unexpected control url: %s", res.ControlURL)
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 session, got %d", reg.Len())
	}
	if !store.isActive(res.SessionID) {
		t.Error("session row should be active")
	}

	cfgs := engine.Configs()
	if len(cfgs) != 1 || cfgs[0].WindowSize != "1920x1080" || !cfgs[0].IsHeadless() {
		t.Errorf("defaults not applied: %+v", cfgs)
	}
}

func TestRegistry_Launch_ResolvesAliases(t *testing.T) {
	reg := newRegistry(browsertest.NewEngine(), nil)

	res, err := reg.Launch(context.Background(), domain.BrowserConfig{BrowserType: "edge"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.BrowserType != domain.BrowserChromium {
		t.Errorf("edge should resolve to chromium, got %s", res.BrowserType)
	}
}

func TestRegistry_Launch_InvalidConfig(t *testing.T) {
	engine := browsertest.NewEngine()
	reg := newRegistry(engine, nil)

	_, err := reg.Launch(context.Background(), domain.BrowserConfig{WindowSize: "big"})
	if !errors.Is(err, browser.ErrInvalidWindowSize) {
		t.Errorf("expected ErrInvalidWindowSize, got %v", err)
	}

	_, err = reg.Launch(context.Background(), domain.BrowserConfig{BrowserType: "opera"})
	if !errors.Is(err, browser.ErrUnsupportedBrowser) {
		t.Errorf("expected ErrUnsupportedBrowser, got %v", err)
	}

	if engine.Launched() != 0 {
		t.Error("engine must not be called for invalid config")
	}
}

func TestRegistry_Launch_EngineError(t *testing.T) {
	engine := browsertest.NewEngine()
	engine.LaunchErr = errors.New("no display")
	reg := newRegistry(engine, nil)

	if _, err := reg.Launch(context.Background(), domain.BrowserConfig{}); err == nil {
		t.Fatal("expected error")
	}
	if reg.Len() != 0 {
		t.Error("failed launch must not register a session")
	}
}

func TestRegistry_Launch_StoreFailureIgnored(t *testing.T) {
	store := newMemStore()
	store.failAll = true
	reg := newRegistry(browsertest.NewEngine(), store)

	res, err := reg.Launch(context.Background(), domain.BrowserConfig{})
	if err != nil {
		t.Fatalf("store failure should not fail launch: %v", err)
	}
	if !reg.Close(res.SessionID) {
		t.Error("close should still succeed")
	}
}

func TestRegistry_CustomControlURL(t *testing.T) {
	reg := browser.NewRegistry(browser.Config{
		Engine:         browsertest.NewEngine(),
		ControlURLBase: "wss://example.com/ws/",
	})

	res, err := reg.Launch(context.Background(), domain.BrowserConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.ControlURL, "wss://example.com/ws/") || strings.Contains(res.ControlURL, "//"+res.SessionID) {
		t.Errorf("unexpected control url: %s", res.ControlURL)
	}
}

// --- Get / Close Tests ---

func TestRegistry_Get_Unknown(t *testing.T) {
	reg := newRegistry(browsertest.NewEngine(), nil)

	if _, err := reg.Get("missing"); !errors.Is(err, browser.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := reg.Page("missing"); !errors.Is(err, browser.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistry_Close(t *testing.T) {
	engine := browsertest.NewEngine()
	store := newMemStore()
	reg := newRegistry(engine, store)

	res, _ := reg.Launch(context.Background(), domain.BrowserConfig{})

	if !reg.Close(res.SessionID) {
		t.Fatal("close of known session should return true")
	}
	if reg.Len() != 0 {
		t.Error("session should be removed")
	}
	for _, s := range reg.List() {
		if s.SessionID == res.SessionID {
			t.Error("closed session should not be listed")
		}
	}
	if !engine.Pages()[0].IsClosed() {
		t.Error("page should be closed")
	}
	if engine.Closed() != 1 {
		t.Errorf("browser should be closed once, got %d", engine.Closed())
	}
	if store.isActive(res.SessionID) {
		t.Error("session row should be inactive")
	}

	// повторное закрытие — no-op
	if reg.Close(res.SessionID) {
		t.Error("second close should return false")
	}
	if engine.Closed() != 1 {
		t.Error("second close must not touch the engine")
	}
}

func TestRegistry_Close_Unknown(t *testing.T) {
	reg := newRegistry(browsertest.NewEngine(), nil)
	if reg.Close("nope") {
		t.Error("unknown id should return false")
	}
}

func TestRegistry_Close_EngineErrorStillReleases(t *testing.T) {
	engine := browsertest.NewEngine()
	engine.CloseErr = errors.New("browser crashed")
	reg := newRegistry(engine, nil)

	res, _ := reg.Launch(context.Background(), domain.BrowserConfig{})

	if !reg.Close(res.SessionID) {
		t.Error("close should return true even if the browser errors")
	}
	if reg.Len() != 0 {
		t.Error("entry should be released")
	}
}

// --- CloseAll / CleanupIdle Tests ---

func TestRegistry_CloseAll(t *testing.T) {
	engine := browsertest.NewEngine()
	reg := newRegistry(engine, nil)

	for i := 0; i < 3; i++ {
		if _, err := reg.Launch(context.Background(), domain.BrowserConfig{}); err != nil {
			t.Fatalf("launch %d: %v", i, err)
		}
	}

	if err := reg.CloseAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 0 {
		t.Error("all sessions should be closed")
	}
	if engine.Closed() != 3 {
		t.Errorf("expected 3 closed browsers, got %d", engine.Closed())
	}
	if !engine.IsShutdown() {
		t.Error("engine should be shut down")
	}

	if _, err := reg.Launch(context.Background(), domain.BrowserConfig{}); !errors.Is(err, browser.ErrEngineClosed) {
		t.Errorf("expected ErrEngineClosed after CloseAll, got %v", err)
	}
}

func TestRegistry_CleanupIdle(t *testing.T) {
	reg := newRegistry(browsertest.NewEngine(), nil)

	old, _ := reg.Launch(context.Background(), domain.BrowserConfig{})
	time.Sleep(30 * time.Millisecond)
	fresh, _ := reg.Launch(context.Background(), domain.BrowserConfig{})

	closed := reg.CleanupIdle(20 * time.Millisecond)

	if closed != 1 {
		t.Fatalf("expected 1 idle session closed, got %d", closed)
	}
	if _, err := reg.Get(old.SessionID); err == nil {
		t.Error("idle session should be closed")
	}
	if _, err := reg.Get(fresh.SessionID); err != nil {
		t.Error("fresh session should stay open")
	}
}

func TestRegistry_ConcurrentLaunchClose(t *testing.T) {
	reg := newRegistry(browsertest.NewEngine(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := reg.Launch(context.Background(), domain.BrowserConfig{})
			if err != nil {
				t.Errorf("launch: %v", err)
				return
			}
			reg.Touch(res.SessionID)
			reg.Close(res.SessionID)
		}()
	}
	wg.Wait()

	if reg.Len() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Len())
	}
}

// --- PageInfo Tests ---

func TestReadPageInfo(t *testing.T) {
	reg := newRegistry(browsertest.NewEngine(), nil)
	res, _ := reg.Launch(context.Background(), domain.BrowserConfig{})
	page, _ := reg.Page(res.SessionID)

	if _, err := page.Goto("https://example.com", time.Second); err != nil {
		t.Fatalf("goto: %v", err)
	}

	info, err := browser.ReadPageInfo(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.URL != "https://example.com" {
		t.Errorf("URL = %s", info.URL)
	}
	if info.Viewport.Width != 1920 || info.Viewport.Height != 1080 {
		t.Errorf("viewport = %+v", info.Viewport)
	}
}
