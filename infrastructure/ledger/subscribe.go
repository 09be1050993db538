package ledger

import (
	"context"
	"time"
)

// subscription tracks one poll-based Subscribe registration.
type subscription struct {
	filter LogFilter
	cb     func(Log)
	cancel context.CancelFunc
}

// Subscribe implements Ledger with a poll loop: every pollPeriod it fetches
// new logs since the last seen block and dispatches them to cb. There is no
// websocket transport requirement in the external interface, so polling the
// same GetLogs path used for backfill keeps one code path for both.
func (c *Client) Subscribe(ctx context.Context, filter LogFilter, cb func(Log)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	sub := &subscription{filter: filter, cb: cb, cancel: cancel}
	c.subMu.Lock()
	c.subs = append(c.subs, sub)
	c.subMu.Unlock()

	start := filter.FromBlock
	if start == 0 {
		head, err := c.GetBlockNumber(ctx)
		if err != nil {
			cancel()
			return nil, err
		}
		start = head
	}

	go c.pollSubscription(subCtx, sub, start)

	unsubscribe := func() {
		cancel()
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s == sub {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				break
			}
		}
	}
	return unsubscribe, nil
}

func (c *Client) pollSubscription(ctx context.Context, sub *subscription, fromBlock uint64) {
	ticker := time.NewTicker(c.pollPeriod)
	defer ticker.Stop()

	cursor := fromBlock
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := c.GetBlockNumber(ctx)
		if err != nil || head < cursor {
			continue
		}

		logs, err := c.GetLogs(ctx, LogFilter{
			Address:   sub.filter.Address,
			Topics:    sub.filter.Topics,
			FromBlock: cursor,
			ToBlock:   head,
		})
		if err != nil {
			continue
		}

		for _, l := range logs {
			sub.cb(l)
		}
		cursor = head + 1
	}
}
