package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

const (
	feedMinReconnect = 10 * time.Second
	feedMaxReconnect = time.Minute
	feedPingInterval = 90 * time.Second
)

// Feed is the live subscription to the shared document. Every committed
// write raises a notification; the feed then reloads the complete current
// list and hands it to the handler, which recomputes all derived state from
// scratch. The handler runs synchronously on the feed goroutine, one
// snapshot at a time, and holds no state between deliveries.
type Feed struct {
	conninfo string
	repo     Repository
	handler  func(Snapshot)
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewFeed(conninfo string, repo Repository, handler func(Snapshot)) *Feed {
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		conninfo: conninfo,
		repo:     repo,
		handler:  handler,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes and delivers the initial snapshot before returning, so
// the caller never serves from an empty cache.
func (f *Feed) Start() error {
	listener := pq.NewListener(f.conninfo, feedMinReconnect, feedMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("ledger feed listener event", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(NotifyChannel); err != nil {
		listener.Close()
		return err
	}

	if err := f.deliver(); err != nil {
		listener.Close()
		return err
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer listener.Close()
		for {
			select {
			case <-f.ctx.Done():
				return
			case <-listener.Notify:
				// A nil notification means the connection was re-established
				// and notifications may have been missed; reload either way.
				if err := f.deliver(); err != nil {
					slog.Error("ledger feed delivery failed", "error", err)
				}
			case <-time.After(feedPingInterval):
				if err := listener.Ping(); err != nil {
					slog.Error("ledger feed ping failed", "error", err)
				}
			}
		}
	}()

	return nil
}

func (f *Feed) deliver() error {
	snapshot, err := f.repo.Load(f.ctx)
	if err != nil {
		return err
	}
	f.handler(snapshot)
	return nil
}

func (f *Feed) Shutdown() {
	f.cancel()
	f.wg.Wait()
}
