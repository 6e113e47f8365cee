// ABOUTME: Controller owns one mounted conversation view: store, engine, cadences, push.
// ABOUTME: Constructed once, torn down exactly once; stale async results are dropped.

package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/parley/internal/reconcile"
	"github.com/2389/parley/internal/thread"
)

// Default cadences. Reply-wait runs hot while an assistant reply is
// streaming; passive refresh runs for the whole mounted lifetime.
const (
	DefaultReplyWaitInterval = 2 * time.Second
	DefaultPassiveInterval   = 3 * time.Second
)

// PushHandle is the controller's view of an open push subscription.
type PushHandle interface {
	Events() <-chan *thread.Conversation
	Close()
}

// Config wires a Controller to its collaborators.
type Config struct {
	ConversationID string

	// Fetch performs one authoritative conversation fetch. Required.
	Fetch func(ctx context.Context) (*thread.Conversation, error)

	// OpenPush opens the push subscription for a conversation. Optional;
	// when nil the controller runs on polling alone.
	OpenPush func(ctx context.Context, conversationID string) (PushHandle, error)

	ReplyWaitInterval time.Duration
	PassiveInterval   time.Duration
	Logger            *slog.Logger
}

// Controller is the per-mounted-view context object. It owns the displayed
// sequence, the reconciliation engine and its trackers, both poll cadences,
// and the optional push subscription. Every asynchronously delivered
// snapshot passes a liveness check before touching view state, so a fetch
// that completes after teardown mutates nothing.
type Controller struct {
	conversationID string
	fetch          func(ctx context.Context) (*thread.Conversation, error)
	openPush       func(ctx context.Context, conversationID string) (PushHandle, error)
	replyInterval  time.Duration
	logger         *slog.Logger

	store  *thread.MessageStore
	engine *reconcile.Engine

	alive        atomic.Bool
	teardownOnce sync.Once
	passive      *Poller
	updates      chan struct{}

	mu         sync.Mutex // serializes snapshot application and reply-wait state
	replyWait  *Poller
	push       PushHandle
	pushOpened bool
	baseCtx    context.Context
}

// NewController builds a controller for one conversation view.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "syncer", "conversation_id", cfg.ConversationID)

	replyInterval := cfg.ReplyWaitInterval
	if replyInterval <= 0 {
		replyInterval = DefaultReplyWaitInterval
	}
	passiveInterval := cfg.PassiveInterval
	if passiveInterval <= 0 {
		passiveInterval = DefaultPassiveInterval
	}

	c := &Controller{
		conversationID: cfg.ConversationID,
		fetch:          cfg.Fetch,
		openPush:       cfg.OpenPush,
		replyInterval:  replyInterval,
		logger:         logger,
		store:          thread.NewMessageStore(cfg.ConversationID),
		engine:         reconcile.New(),
		updates:        make(chan struct{}, 1),
	}
	c.alive.Store(true)
	c.passive = NewPoller("passive-refresh", passiveInterval, c.refreshTick, logger)
	return c
}

// Start performs the initial authoritative load, then opens the push channel
// and begins passive refresh. The push channel is never opened before the
// first load has succeeded: there is no base to merge a push update into.
func (c *Controller) Start(ctx context.Context) error {
	conv, err := c.fetch(ctx)
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	c.applySnapshot(conv, "initial")

	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	if c.openPush != nil {
		c.mu.Lock()
		opened := c.pushOpened
		c.pushOpened = true
		c.mu.Unlock()
		if !opened {
			push, err := c.openPush(ctx, c.conversationID)
			if err != nil {
				// Push is an optimization; passive polling carries the load.
				c.logger.Debug("push channel unavailable, polling only", "error", err)
			} else {
				c.mu.Lock()
				c.push = push
				c.mu.Unlock()
				go c.consumePush(push)
			}
		}
	}

	c.passive.Start(ctx)
	return nil
}

// Refresh performs one authoritative fetch and routes it through the merge
// path. Implements thread.Refresher for the optimistic writer.
func (c *Controller) Refresh(ctx context.Context) error {
	conv, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	c.applySnapshot(conv, "refresh")
	return nil
}

// AwaitReply starts the reply-wait cadence. It stops on its own the moment
// the engine reports the assistant reply has stopped growing. Calling it
// while already awaiting is a no-op.
func (c *Controller) AwaitReply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive.Load() || c.replyWait != nil {
		return
	}
	ctx := c.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	c.replyWait = NewPoller("reply-wait", c.replyInterval, c.refreshTick, c.logger)
	c.replyWait.Start(ctx)
	c.logger.Debug("reply-wait cadence started")
}

// Awaiting reports whether the reply-wait cadence is running.
func (c *Controller) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyWait != nil
}

// Messages returns a copy of the displayed sequence.
func (c *Controller) Messages() []thread.Message {
	return c.store.Snapshot()
}

// Conversation returns the current merged view as a conversation record.
func (c *Controller) Conversation() thread.Conversation {
	return c.store.Conversation()
}

// Store exposes the underlying message store, for wiring the writer.
func (c *Controller) Store() *thread.MessageStore {
	return c.store
}

// Updates returns a coalescing signal channel: a receive means the displayed
// sequence changed since the last look.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Teardown stops both cadences and closes the push channel. Idempotent; all
// still-in-flight fetches become no-ops via the liveness guard.
func (c *Controller) Teardown() {
	c.teardownOnce.Do(func() {
		c.alive.Store(false)
		c.passive.Stop()
		c.mu.Lock()
		if c.replyWait != nil {
			c.replyWait.Stop()
			c.replyWait = nil
		}
		push := c.push
		c.push = nil
		c.mu.Unlock()
		if push != nil {
			push.Close()
		}
		c.logger.Debug("view torn down")
	})
}

// refreshTick is the shared tick body for both cadences.
func (c *Controller) refreshTick(ctx context.Context) error {
	conv, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	c.applySnapshot(conv, "poll")
	return nil
}

// consumePush routes push snapshots through the same merge path as poll
// results. When the stream ends it is not reopened; passive refresh remains
// the fallback transport.
func (c *Controller) consumePush(push PushHandle) {
	for conv := range push.Events() {
		c.applySnapshot(conv, "push")
	}
	c.logger.Debug("push channel closed, passive polling continues")
}

// applySnapshot merges one server snapshot into the displayed sequence.
// Only genuinely pending optimistic entries feed the merge as local input:
// unconfirmed ones survive, confirmed ones collapse onto their server
// copies. Anything else the view shows comes from the server snapshot
// alone, so a superseded older rendering of a still-streaming message can
// never be resurrected as a phantom pending entry.
func (c *Controller) applySnapshot(conv *thread.Conversation, via string) {
	if !c.alive.Load() {
		// A fetch that completes after teardown must not touch view state.
		return
	}

	c.mu.Lock()
	local := c.store.Pending()
	res := c.engine.Merge(conv.Messages, local)
	c.store.ApplyFetch(conv, res.Messages)
	if res.StreamComplete && c.replyWait != nil {
		c.replyWait.Stop()
		c.replyWait = nil
		c.logger.Debug("assistant reply complete, reply-wait cadence stopped")
	}
	c.mu.Unlock()

	if res.Updated {
		select {
		case c.updates <- struct{}{}:
		default:
		}
		c.logger.Debug("conversation updated",
			"via", via,
			"server_messages", len(conv.Messages),
			"displayed", len(res.Messages))
	}
}
