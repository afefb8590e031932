package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrNoChannel — соединение с RabbitMQ сейчас не установлено.
var ErrNoChannel = errors.New("no amqp channel available")

// Connection — обёртка над AMQP соединением с автоматическим reconnect.
//
// При разрыве соединение восстанавливается с экспоненциальной задержкой
// (до 30 секунд). Publisher и Consumer берут канал через WithChannel/Channel
// и переживают переподключение.
type Connection struct {
	url    string
	name   string
	logger *zap.Logger

	mu        sync.RWMutex
	publishMu sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel

	closed   bool
	closedCh chan struct{}

	hooksMu sync.Mutex
	hooks   []ReconnectHook
}

// ReconnectHook вызывается после успешного переподключения.
type ReconnectHook func(ctx context.Context, c *Connection) error

// NewConnection создаёт новое соединение с RabbitMQ.
// name показывается в management UI как имя соединения.
func NewConnection(url, name string, logger *zap.Logger) (*Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connection{
		url:      url,
		name:     name,
		logger:   logger,
		closedCh: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	// Запускаем горутину для мониторинга соединения
	go c.watchConnection()

	return c, nil
}

// connect устанавливает соединение и открывает канал.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(c.name)

	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat:  10 * time.Second,
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("connected to rabbitmq", zap.String("connection", c.name))

	return nil
}

// watchConnection следит за соединением и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			time.Sleep(time.Second)
			continue
		}

		// Ждём уведомления о закрытии соединения
		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("rabbitmq connection lost", zap.Error(err))
			}

			// Переподключаемся с экспоненциальной задержкой
			c.reconnect()
		}
	}
}

// reconnect пытается переподключиться с экспоненциальной задержкой.
func (c *Connection) reconnect() {
	delay := time.Second

	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		c.mu.RUnlock()

		c.logger.Info("reconnecting to rabbitmq", zap.Duration("delay", delay))
		time.Sleep(delay)

		if err := c.connect(); err != nil {
			c.logger.Warn("rabbitmq reconnect failed", zap.Error(err))
			// Увеличиваем задержку (максимум 30 секунд)
			delay = min(delay*2, 30*time.Second)
			continue
		}

		c.logger.Info("reconnected to rabbitmq")
		c.runHooks()
		return
	}
}

func (c *Connection) runHooks() {
	c.hooksMu.Lock()
	hooks := append([]ReconnectHook(nil), c.hooks...)
	c.hooksMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, hook := range hooks {
		if err := hook(ctx, c); err != nil {
			c.logger.Warn("reconnect hook failed", zap.Error(err))
		}
	}
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// OnReconnect регистрирует hook, выполняемый после каждого переподключения.
// Брокер без персистентности теряет exchange и очереди при рестарте,
// поэтому сюда обычно передают SetupTopology.
func (c *Connection) OnReconnect(hook ReconnectHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Close закрывает соединение.
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

	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.logger.Info("rabbitmq connection closed")
	return nil
}

// WithChannel выполняет функцию с текущим каналом.
// Канал AMQP не потокобезопасен для публикации, поэтому вызовы сериализуются.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}

	return fn(ch)
}
