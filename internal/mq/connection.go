package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
	hookTimeout       = 10 * time.Second
)

// ReconnectHook выполняется после восстановления соединения, до того как
// подписчики ReconnectNotify получат сигнал.
type ReconnectHook func(ctx context.Context) error

// Connection — AMQP соединение с одним каналом и переподключением.
//
// После разрыва соединение восстанавливается с экспоненциальной задержкой
// (1s..30s). Затем выполняются ReconnectHook (например, объявление
// топологии webmata.events) и подписчики ReconnectNotify получают сигнал.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	hooks   []ReconnectHook

	closed   bool
	closedCh chan struct{}

	reconnectCh chan struct{}
}

// NewConnection подключается к брокеру и запускает наблюдение за соединением.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:         url,
		logger:      logger.With("broker", redactURL(url)),
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	if err := c.dial(); err != nil {
		return nil, err
	}
	go c.supervise()
	return c, nil
}

// dial открывает соединение и канал и подменяет текущие.
func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrConnectionClosed
	}
	c.conn, c.channel = conn, ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// supervise ждёт разрыва соединения и восстанавливает его до Close.
func (c *Connection) supervise() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		lost := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.closedCh:
			return
		case err := <-lost:
			if err != nil {
				c.logger.Warn("connection lost", "error", err)
			}
		}

		if !c.redial() {
			return
		}
		c.afterReconnect()
	}
}

// redial повторяет dial с растущей задержкой. false — соединение закрыто.
func (c *Connection) redial() bool {
	delay := minReconnectDelay
	for {
		c.logger.Info("attempting to reconnect", "delay", delay)
		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		err := c.dial()
		if err == nil {
			return true
		}
		if errors.Is(err, ErrConnectionClosed) {
			return false
		}
		c.logger.Warn("reconnect failed", "error", err)
		delay = min(delay*2, maxReconnectDelay)
	}
}

// afterReconnect выполняет хуки и будит подписчиков ReconnectNotify.
// Ошибка хука логируется и не прерывает остальные.
func (c *Connection) afterReconnect() {
	c.mu.RLock()
	hooks := append([]ReconnectHook(nil), c.hooks...)
	c.mu.RUnlock()

	for i, hook := range hooks {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		if err := hook(ctx); err != nil {
			c.logger.Error("reconnect hook failed", "hook", i, "error", err)
		}
		cancel()
	}

	c.logger.Info("reconnected to RabbitMQ", "hooks", len(hooks))
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// OnReconnect регистрирует хук, выполняемый после каждого переподключения.
func (c *Connection) OnReconnect(hook ReconnectHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сигналит после переподключения и выполнения хуков.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// Close закрывает канал и соединение. Повторный вызов ничего не делает.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}
	return fn(ch)
}

// redactURL убирает учётные данные из адреса брокера.
func redactURL(raw string) string {
	uri, err := amqp.ParseURI(raw)
	if err != nil {
		return "invalid"
	}
	return fmt.Sprintf("%s:%d/%s", uri.Host, uri.Port, strings.TrimPrefix(uri.Vhost, "/"))
}
