package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/storage"
)

// push queues an outbox item and tries to deliver it right away. On failure
// the item stays in the outbox for the redelivery worker.
func (r *Relay) push(ctx context.Context, item *storage.OutboxItem) error {
	key, err := r.stg.PushOutbox(item, true)
	if err != nil {
		return fmt.Errorf("queue delivery: %w", err)
	}
	r.metrics.Outbox.Inc()
	return r.deliver(ctx, item, key)
}

// deliver sends a reserved outbox item and marks it as delivered, or
// releases it after a failure.
func (r *Relay) deliver(ctx context.Context, item *storage.OutboxItem, key []byte) error {
	dctx, cancel := context.WithTimeout(ctx, r.cfg.DeliveryTimeout)
	defer cancel()
	tid, err := r.transport.Deliver(dctx, item.GroupID, item.Content, item.Metadata)
	if err != nil {
		r.metrics.Deliveries.WithLabelValues("failed").Inc()
		log.Warnw("delivery failed", "message", item.MessageID, "attempt", item.Attempts+1, "error", err.Error())
		if rerr := r.stg.ReleaseOutbox(key, err, r.cfg.MaxDeliveryAttempts); rerr != nil {
			log.Errorw(rerr, "could not release outbox item")
		}
		r.metrics.Outbox.Set(float64(r.stg.OutboxSize()))
		return fmt.Errorf("delivery to %s failed, it will be retried: %w", r.transport.Name(), err)
	}
	r.metrics.Deliveries.WithLabelValues("delivered").Inc()
	if err := r.stg.MarkOutboxDone(key); err != nil {
		log.Errorw(err, "could not remove delivered outbox item")
	}
	r.metrics.Outbox.Dec()
	if tid != "" {
		if err := r.stg.SetTransportID(item.MessageID, tid); err != nil {
			log.Warnw("could not store transport id", "message", item.MessageID, "error", err.Error())
		}
	}
	log.Debugw("message delivered", "message", item.MessageID, "transportId", tid)
	return nil
}

// Redeliver drains the outbox, retrying every pending delivery once. It
// returns the number of items delivered.
func (r *Relay) Redeliver(ctx context.Context) int {
	delivered := 0
	// a failed item goes back to the queue, bound the pass by its size
	for pending := r.stg.OutboxSize(); pending > 0; pending-- {
		if ctx.Err() != nil {
			break
		}
		item, key, err := r.stg.NextOutbox()
		if errors.Is(err, storage.ErrNoMoreElements) {
			break
		}
		if err != nil {
			log.Warnw("could not read the outbox", "error", err.Error())
			break
		}
		if err := r.deliver(ctx, item, key); err == nil {
			delivered++
		}
	}
	return delivered
}

// Start launches the settlement and redelivery workers. They stop when ctx
// is done or Stop is called.
func (r *Relay) Start(ctx context.Context) {
	r.workersMu.Lock()
	defer r.workersMu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(2)
	go r.loop(ctx, "settlement", r.cfg.SettleInterval, func(context.Context) {
		if n, err := r.SettleAll(); err != nil {
			log.Warnw("settlement pass failed", "error", err.Error())
		} else if n > 0 {
			log.Infow("reputation settled", "effects", n)
		}
	})
	go r.loop(ctx, "redelivery", r.cfg.RedeliverInterval, func(ctx context.Context) {
		if n := r.Redeliver(ctx); n > 0 {
			log.Infow("outbox drained", "delivered", n)
		}
	})
}

// Stop stops the workers and waits for them to return.
func (r *Relay) Stop() {
	r.workersMu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.workersMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
}

func (r *Relay) loop(ctx context.Context, name string, every time.Duration, fn func(context.Context)) {
	defer r.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	log.Debugw("worker started", "worker", name, "interval", every.String())
	for {
		select {
		case <-ctx.Done():
			log.Debugw("worker stopped", "worker", name)
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
