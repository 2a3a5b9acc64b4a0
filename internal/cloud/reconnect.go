package cloud

import (
	"context"
	"fmt"
	"time"
)

// UpdateToken replaces the session with one authenticated by token.
//
// The held connection is closed without waiting, every subscription is kept,
// and a new connection is opened with the current options and the new token.
// Failed attempts are logged and retried after Options.ReconnectDelay for as
// long as ctx allows, so callers wanting the renewal to outlast a broker
// outage should pass a context without a deadline. Once connected, every
// kept topic is subscribed again with its handlers in their original order
// and OnConnected fires once.
//
// UpdateToken returns nil once the new session is live, ctx.Err(), or
// ErrNotConnected when Disconnect stopped the renewal.
func (c *Client) UpdateToken(ctx context.Context, token string) error {
	renewCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancelRecovery != nil {
		c.cancelRecovery()
	}
	c.renewSeq++
	id := c.renewSeq
	c.renewals[id] = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.renewals, id)
		c.mu.Unlock()
	}()

	c.renewMu.Lock()
	defer c.renewMu.Unlock()

	err := c.renewSession(renewCtx, token)
	if err != nil && ctx.Err() == nil && renewCtx.Err() != nil {
		return fmt.Errorf("%w: disconnected during session renewal", ErrNotConnected)
	}
	return err
}

// recoverSession renews the session of generation gen after a fatal error,
// unless a renewal is already running or the session was replaced.
func (c *Client) recoverSession(gen uint64) {
	if !c.renewMu.TryLock() {
		return
	}
	defer c.renewMu.Unlock()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRecovery = cancel
	token := c.options.Token
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancelRecovery = nil
		c.mu.Unlock()
		cancel()
	}()

	if err := c.renewSession(ctx, token); err != nil {
		c.getLogger().Info("session recovery stopped", "reason", err)
	}
}

func (c *Client) renewSession(ctx context.Context, token string) error {
	for attempt := 1; ; attempt++ {
		err := c.replaceSession(ctx, token)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := c.Options().withDefaults().ReconnectDelay
		c.getLogger().Error("session renewal failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// replaceSession performs one renewal attempt. Subscription changes are held
// off until it finishes.
func (c *Client) replaceSession(ctx context.Context, token string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	old := c.conn
	c.conn = nil
	c.state = StateIdle
	c.settle = nil
	c.gen++
	opts := c.options
	logger := c.logger
	c.mu.Unlock()

	if old != nil {
		if err := old.End(true); err != nil {
			logger.Warn("ending previous connection", "error", err)
		}
	}

	opts.Token = token
	if err := c.connect(ctx, opts, false); err != nil {
		return err
	}

	conn := c.connection()
	if conn == nil {
		return ErrNotConnected
	}
	if err := c.replaySubscriptions(ctx, conn); err != nil {
		return err
	}

	c.mu.Lock()
	hook := c.options.OnConnected
	c.mu.Unlock()

	logger.Info("session renewed", "topics", c.SubscriptionCount())
	fire(hook)
	return nil
}

// replaySubscriptions subscribes conn to every kept topic in first-subscribe
// order. Handler lists are left untouched.
func (c *Client) replaySubscriptions(ctx context.Context, conn Connection) error {
	for _, topic := range c.SubscribedTopics() {
		if err := conn.Subscribe(ctx, topic); err != nil {
			return fmt.Errorf("%w: replaying %s: %w", ErrSubscribeFailed, topic, err)
		}
	}
	return nil
}
