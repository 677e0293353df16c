package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/jsonrpc"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// WatcherConfig holds the configuration for a Watcher.
type WatcherConfig struct {
	URL        string
	Logger     Logger
	BufferSize uint
	// Pool restricts the stream to one pool. Nil watches every pool.
	Pool *engine.PoolID
}

// validate checks if the configuration is valid.
func (c *WatcherConfig) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Watcher keeps a pool event subscription alive, reconnecting with backoff
// when the connection drops. Events committed while disconnected are missed.
type Watcher struct {
	events chan engine.PoolEvent
	errCh  chan error
	logger Logger
	pool   *engine.PoolID
}

// NewWatcher starts watching until ctx is cancelled.
func NewWatcher(ctx context.Context, cfg WatcherConfig) (*Watcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	w := &Watcher{
		events: make(chan engine.PoolEvent, cfg.BufferSize),
		errCh:  make(chan error, 1),
		logger: cfg.Logger,
		pool:   cfg.Pool,
	}
	go w.run(ctx, cfg.URL)
	return w, nil
}

// Events returns a read-only channel of committed pool operations.
func (w *Watcher) Events() <-chan engine.PoolEvent {
	return w.events
}

// Err is closed when the watcher stops.
func (w *Watcher) Err() <-chan error {
	return w.errCh
}

func (w *Watcher) run(ctx context.Context, url string) {
	defer close(w.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			w.logger.Info("watcher context canceled, shutting down")
			return
		}

		w.logger.Info("connecting to pool server", "url", url)
		c, err := Dial(ctx, url)
		if err != nil {
			w.logger.Error("failed to connect to pool server, will retry", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}
		reconnectDelay = initialReconnectDelay

		err = w.subscribeAndForward(ctx, c)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			w.logger.Info("watcher context canceled, shutting down")
			return
		}
		w.logger.Error("pool event subscription failed, will reconnect", "error", err, "delay", reconnectDelay)
		if !sleep(ctx, reconnectDelay) {
			return
		}
		reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
	}
}

func (w *Watcher) subscribeAndForward(ctx context.Context, c *Client) error {
	defer c.Close()

	raw := make(chan jsonrpc.PoolEvent)
	sub, err := c.SubscribePoolEvents(ctx, w.pool, raw)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	w.logger.Info("subscribed to pool events")
	for {
		select {
		case ev := <-raw:
			select {
			case w.events <- ev.Event():
			case <-ctx.Done():
				return ctx.Err()
			}
		case err := <-sub.Err():
			if err == nil {
				err = rpc.ErrClientQuit
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
