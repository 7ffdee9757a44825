package messaging

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/metrics"
	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/util"
)

// Default reply pacing.
const (
	DefaultTypingDelayMin = 1500 * time.Millisecond
	DefaultTypingDelayMax = 3500 * time.Millisecond
)

// DefaultWorkers is the number of turn workers. Messages from one sender always
// go to the same worker and are handled in arrival order.
const DefaultWorkers = 16

// ResponseHandler consumes inbound messages from a Service, runs one turn per
// message and delivers the reply.
type ResponseHandler struct {
	msgService   Service
	turns        TurnHandler
	dedup        store.DedupRepo
	metrics      *metrics.Metrics
	failureReply string
	humanize     bool
	delayMin     time.Duration
	delayMax     time.Duration
	workers      int

	wg sync.WaitGroup
}

// ResponseHandlerOption configures a ResponseHandler.
type ResponseHandlerOption func(*ResponseHandler)

// WithDedup drops inbound messages whose ID was already recorded.
func WithDedup(repo store.DedupRepo) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.dedup = repo }
}

// WithHandlerMetrics records duplicate and delivery counters.
func WithHandlerMetrics(m *metrics.Metrics) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.metrics = m }
}

// WithFailureReply sets the reply sent when a turn panics.
func WithFailureReply(text string) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.failureReply = text }
}

// WithHumanizedDelivery toggles read receipts, typing indicator and delay.
func WithHumanizedDelivery(enabled bool) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.humanize = enabled }
}

// WithTypingDelay sets the random delay range applied before each reply.
func WithTypingDelay(min, max time.Duration) ResponseHandlerOption {
	return func(rh *ResponseHandler) {
		rh.delayMin = min
		rh.delayMax = max
	}
}

// WithWorkers sets the number of turn workers; values below 1 are ignored.
func WithWorkers(n int) ResponseHandlerOption {
	return func(rh *ResponseHandler) {
		if n > 0 {
			rh.workers = n
		}
	}
}

// NewResponseHandler creates a ResponseHandler. Humanized delivery is on by default.
func NewResponseHandler(msgService Service, turns TurnHandler, opts ...ResponseHandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		msgService: msgService,
		turns:      turns,
		humanize:   true,
		delayMin:   DefaultTypingDelayMin,
		delayMax:   DefaultTypingDelayMax,
		workers:    DefaultWorkers,
	}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// Start begins processing responses from the messaging service. Messages are
// routed to a worker by sender, so one sender's turns run sequentially in
// arrival order while different senders proceed in parallel.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing", "workers", rh.workers)

	queues := make([]chan models.Response, rh.workers)
	for i := range queues {
		queues[i] = make(chan models.Response, DefaultChannelBufferSize)
		rh.wg.Add(1)
		go rh.work(ctx, queues[i])
	}

	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		defer slog.Info("ResponseHandler stopped response processing")
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()

		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				select {
				case queues[rh.shard(response.From)] <- response:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}

// work drains one queue until it is closed.
func (rh *ResponseHandler) work(ctx context.Context, queue <-chan models.Response) {
	defer rh.wg.Done()
	for resp := range queue {
		if err := rh.ProcessResponse(ctx, resp); err != nil {
			slog.Error("ResponseHandler failed to process response", "error", err, "from", resp.From)
		}
	}
}

// shard picks the worker for a sender. The canonical identity is hashed so that
// differently formatted numbers of one sender share a queue.
func (rh *ResponseHandler) shard(from string) int {
	if canonical, err := rh.msgService.ValidateAndCanonicalizeRecipient(from); err == nil {
		from = canonical
	}
	h := fnv.New32a()
	h.Write([]byte(from))
	return int(h.Sum32() % uint32(rh.workers))
}

// Wait blocks until the processing loop and all in-flight turns have finished.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}

// ProcessResponse runs one turn for an inbound message and delivers the reply.
// Delivery errors are returned for logging only; they never affect the dialogue.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	response.From = canonicalFrom

	if rh.dedup != nil && response.MessageID != "" {
		inserted, err := rh.dedup.RecordInbound(ctx, response.MessageID, canonicalFrom)
		if err != nil {
			slog.Warn("ResponseHandler dedup record failed, processing anyway", "error", err, "message_id", response.MessageID)
		} else if !inserted {
			slog.Info("ResponseHandler dropping duplicate message", "from", canonicalFrom, "message_id", response.MessageID)
			rh.metrics.DuplicateDropped()
			return nil
		}
	}

	reply := rh.runTurn(ctx, response)

	if rh.dedup != nil && response.MessageID != "" {
		if err := rh.dedup.MarkProcessed(ctx, response.MessageID); err != nil {
			slog.Warn("ResponseHandler dedup mark failed", "error", err, "message_id", response.MessageID)
		}
	}

	if reply == "" {
		slog.Debug("ResponseHandler no reply for message", "from", canonicalFrom)
		return nil
	}

	if err := rh.deliver(ctx, response, reply); err != nil {
		rh.metrics.DeliveryFailed()
		return fmt.Errorf("failed to deliver reply: %w", err)
	}
	return nil
}

// runTurn calls the turn handler, converting a panic into the failure reply.
func (rh *ResponseHandler) runTurn(ctx context.Context, response models.Response) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ResponseHandler turn panicked", "from", response.From, "panic", r, "stack", string(debug.Stack()))
			reply = rh.failureReply
		}
	}()
	return rh.turns.HandleTurn(ctx, response)
}

// deliver sends the reply, preceded by a read receipt, a typing indicator and a
// short pause when humanized delivery is enabled and supported.
func (rh *ResponseHandler) deliver(ctx context.Context, response models.Response, reply string) error {
	presence, ok := rh.msgService.(PresenceService)
	if rh.humanize && ok {
		if err := presence.MarkRead(ctx, response.From, response.MessageID); err != nil {
			slog.Debug("ResponseHandler mark read failed", "error", err, "from", response.From)
		}
		if err := presence.SendTyping(ctx, response.From, true); err != nil {
			slog.Debug("ResponseHandler typing indicator failed", "error", err, "from", response.From)
		}
		if err := sleepContext(ctx, util.RandomDuration(rh.delayMin, rh.delayMax)); err != nil {
			return err
		}
		defer func() {
			if err := presence.SendTyping(context.WithoutCancel(ctx), response.From, false); err != nil {
				slog.Debug("ResponseHandler typing indicator clear failed", "error", err, "from", response.From)
			}
		}()
	}

	if err := rh.msgService.SendMessage(ctx, response.From, reply); err != nil {
		slog.Error("ResponseHandler reply delivery failed", "error", err, "to", response.From)
		return err
	}
	slog.Debug("ResponseHandler reply delivered", "to", response.From, "body_length", len(reply))
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
