package actor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"loanpipe/internal/dispatch"
)

// resubscribeDelay is the pause before reopening a broken request stream.
const resubscribeDelay = time.Second

// Run subscribes to the worker's topics on d and processes requests in
// arrival order, replying to each with the request's correlation id. A
// broken stream is reopened. Run returns when ctx is cancelled.
func (w *Worker) Run(ctx context.Context, d *dispatch.Client) error {
	for {
		if err := w.serve(ctx, d); err != nil && ctx.Err() == nil {
			w.logger.Warn("Request stream ended, resubscribing",
				zap.String("dispatcher", d.Addr()), zap.Error(err))
		}

		t := time.NewTimer(resubscribeDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (w *Worker) serve(ctx context.Context, d *dispatch.Client) error {
	sub, err := d.Subscribe(ctx, w.topics)
	if err != nil {
		return err
	}
	w.logger.Info("Subscribed", zap.Any("topics", w.topics))

	for {
		req, err := sub.Recv()
		if err != nil {
			return err
		}
		res := w.Process(ctx, req)
		res.ID = req.ID
		if err := d.Reply(ctx, res); err != nil {
			w.logger.Warn("Failed to send reply",
				zap.String("id", req.ID), zap.Error(err))
		}
	}
}
