package messaging

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/BTreeMap/BookingPipe/internal/metrics"
	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/BookingPipe/internal/whatsapp"
)

// recordingTurns replies with a fixed text and records every turn.
type recordingTurns struct {
	mu     sync.Mutex
	reply  string
	panics bool
	seen   []models.Response
}

func (r *recordingTurns) HandleTurn(ctx context.Context, msg models.Response) string {
	r.mu.Lock()
	r.seen = append(r.seen, msg)
	r.mu.Unlock()
	if r.panics {
		panic("boom")
	}
	return r.reply
}

func (r *recordingTurns) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func inbound(id string) models.Response {
	return models.Response{From: "+62 812-3456-7890", Body: "menu", Time: time.Now().Unix(), Name: "Budi", MessageID: id}
}

func TestProcessResponse_HumanizedDelivery(t *testing.T) {
	mock := whatsapp.NewMockClient()
	turns := &recordingTurns{reply: "Halo"}
	rh := NewResponseHandler(NewWhatsAppService(mock), turns, WithTypingDelay(0, 0))

	if err := rh.ProcessResponse(context.Background(), inbound("ID1")); err != nil {
		t.Fatalf("ProcessResponse returned error: %v", err)
	}

	if turns.seen[0].From != "6281234567890" {
		t.Errorf("expected canonical identity, got %q", turns.seen[0].From)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 || msgs[0].To != "6281234567890" || msgs[0].Body != "Halo" {
		t.Fatalf("unexpected sent messages: %+v", msgs)
	}
	if len(mock.Reads) != 1 || mock.Reads[0] != "ID1" {
		t.Errorf("expected read receipt for ID1, got %v", mock.Reads)
	}
	if len(mock.Typing) != 2 || !mock.Typing[0] || mock.Typing[1] {
		t.Errorf("expected typing on then off, got %v", mock.Typing)
	}
}

func TestProcessResponse_PlainDelivery(t *testing.T) {
	mock := whatsapp.NewMockClient()
	rh := NewResponseHandler(NewWhatsAppService(mock), &recordingTurns{reply: "Halo"}, WithHumanizedDelivery(false))

	if err := rh.ProcessResponse(context.Background(), inbound("ID1")); err != nil {
		t.Fatalf("ProcessResponse returned error: %v", err)
	}
	if len(mock.Messages()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.Messages()))
	}
	if len(mock.Reads) != 0 || len(mock.Typing) != 0 {
		t.Errorf("expected no presence activity, got reads=%v typing=%v", mock.Reads, mock.Typing)
	}
}

func TestProcessResponse_GatewayWithoutPresence(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	rh := NewResponseHandler(NewTwilioService(mock), &recordingTurns{reply: "Halo"}, WithTypingDelay(0, 0))

	if err := rh.ProcessResponse(context.Background(), inbound("SM1")); err != nil {
		t.Fatalf("ProcessResponse returned error: %v", err)
	}
	if msgs := mock.Messages(); len(msgs) != 1 || msgs[0].To != "6281234567890" {
		t.Errorf("unexpected sent messages: %+v", msgs)
	}
}

func TestProcessResponse_SilentTurn(t *testing.T) {
	mock := whatsapp.NewMockClient()
	turns := &recordingTurns{}
	rh := NewResponseHandler(NewWhatsAppService(mock), turns, WithTypingDelay(0, 0))

	if err := rh.ProcessResponse(context.Background(), inbound("ID1")); err != nil {
		t.Fatalf("ProcessResponse returned error: %v", err)
	}
	if turns.count() != 1 {
		t.Errorf("expected turn to run once, ran %d", turns.count())
	}
	if len(mock.Messages()) != 0 || len(mock.Reads) != 0 {
		t.Errorf("expected nothing sent for a silent turn")
	}
}

func TestProcessResponse_InvalidSender(t *testing.T) {
	turns := &recordingTurns{reply: "Halo"}
	rh := NewResponseHandler(NewWhatsAppService(whatsapp.NewMockClient()), turns)

	msg := inbound("ID1")
	msg.From = "123"
	if err := rh.ProcessResponse(context.Background(), msg); err == nil {
		t.Fatal("expected error for invalid sender")
	}
	if turns.count() != 0 {
		t.Error("turn must not run for an invalid sender")
	}
}

func TestProcessResponse_DropsDuplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	mock := whatsapp.NewMockClient()
	turns := &recordingTurns{reply: "Halo"}
	rh := NewResponseHandler(NewWhatsAppService(mock), turns,
		WithTypingDelay(0, 0),
		WithDedup(store.NewMemoryDedup(0)),
		WithHandlerMetrics(metrics.New(reg)))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := rh.ProcessResponse(ctx, inbound("ID1")); err != nil {
			t.Fatalf("ProcessResponse returned error: %v", err)
		}
	}
	if err := rh.ProcessResponse(ctx, inbound("ID2")); err != nil {
		t.Fatalf("ProcessResponse returned error: %v", err)
	}

	if turns.count() != 2 {
		t.Errorf("expected 2 turns, got %d", turns.count())
	}
	if len(mock.Messages()) != 2 {
		t.Errorf("expected 2 replies, got %d", len(mock.Messages()))
	}

	expected := `
# HELP bookingpipe_messaging_duplicate_messages_total Inbound messages dropped as redeliveries
# TYPE bookingpipe_messaging_duplicate_messages_total counter
bookingpipe_messaging_duplicate_messages_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "bookingpipe_messaging_duplicate_messages_total"); err != nil {
		t.Error(err)
	}
}

func TestProcessResponse_RecoversFromPanic(t *testing.T) {
	mock := whatsapp.NewMockClient()
	rh := NewResponseHandler(NewWhatsAppService(mock), &recordingTurns{panics: true},
		WithTypingDelay(0, 0), WithFailureReply("coba lagi"))

	if err := rh.ProcessResponse(context.Background(), inbound("ID1")); err != nil {
		t.Fatalf("ProcessResponse returned error: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 || msgs[0].Body != "coba lagi" {
		t.Errorf("expected failure reply, got %+v", msgs)
	}
}

func TestProcessResponse_DeliveryFailureCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	mock := whatsapp.NewMockClient()
	mock.SendErr = errors.New("not connected")
	turns := &recordingTurns{reply: "Halo"}
	rh := NewResponseHandler(NewWhatsAppService(mock), turns,
		WithHumanizedDelivery(false), WithHandlerMetrics(metrics.New(reg)))

	if err := rh.ProcessResponse(context.Background(), inbound("ID1")); err == nil {
		t.Fatal("expected delivery error")
	}
	if turns.count() != 1 {
		t.Errorf("turn should still have run once, ran %d", turns.count())
	}

	expected := `
# HELP bookingpipe_messaging_delivery_failures_total Replies the gateway failed to deliver
# TYPE bookingpipe_messaging_delivery_failures_total counter
bookingpipe_messaging_delivery_failures_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "bookingpipe_messaging_delivery_failures_total"); err != nil {
		t.Error(err)
	}
}

func TestProcessResponse_DelayHonoursContext(t *testing.T) {
	mock := whatsapp.NewMockClient()
	rh := NewResponseHandler(NewWhatsAppService(mock), &recordingTurns{reply: "Halo"},
		WithTypingDelay(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rh.ProcessResponse(ctx, inbound("ID1")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(mock.Messages()) != 0 {
		t.Error("no reply should be sent after cancellation")
	}
}

func TestResponseHandler_StartProcessesChannel(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	turns := &recordingTurns{reply: "Halo"}
	rh := NewResponseHandler(svc, turns, WithTypingDelay(0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rh.Start(ctx)

	svc.emit(models.Response{From: "6281234567890", Body: "menu", MessageID: "A"})
	svc.emit(models.Response{From: "6289876543210", Body: "menu", MessageID: "B"})

	deadline := time.Now().Add(2 * time.Second)
	for len(mock.Messages()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(mock.Messages()); got != 2 {
		t.Fatalf("expected 2 replies, got %d", got)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	rh.Wait()
}

// orderedTurns records each sender's message bodies in the order turns ran,
// pausing briefly so concurrent turns interleave.
type orderedTurns struct {
	mu   sync.Mutex
	seen map[string][]string
}

func (o *orderedTurns) HandleTurn(ctx context.Context, msg models.Response) string {
	time.Sleep(time.Duration(rand.IntN(200)) * time.Microsecond)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen[msg.From] = append(o.seen[msg.From], msg.Body)
	return ""
}

func TestResponseHandler_PreservesPerSenderOrder(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	turns := &orderedTurns{seen: make(map[string][]string)}
	rh := NewResponseHandler(svc, turns, WithHumanizedDelivery(false), WithWorkers(4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rh.Start(ctx)

	const senders = 50
	bodies := []string{"menu", "1", "3", "2026-02-15", "2"}
	for _, body := range bodies {
		for i := 0; i < senders; i++ {
			svc.emit(models.Response{
				From:      fmt.Sprintf("628123400%04d", i),
				Body:      body,
				MessageID: fmt.Sprintf("%d-%s", i, body),
			})
		}
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	rh.Wait()

	if len(turns.seen) != senders {
		t.Fatalf("expected turns for %d senders, got %d", senders, len(turns.seen))
	}
	for from, got := range turns.seen {
		if strings.Join(got, ",") != strings.Join(bodies, ",") {
			t.Errorf("sender %s: turns ran as %v, want %v", from, got, bodies)
		}
	}
}

func TestResponseHandler_ShardUsesCanonicalIdentity(t *testing.T) {
	rh := NewResponseHandler(NewWhatsAppService(whatsapp.NewMockClient()), &recordingTurns{}, WithWorkers(8))

	if rh.shard("+62 812-3456-7890") != rh.shard("6281234567890") {
		t.Error("formatting variants of one number should share a worker")
	}
	if got := rh.shard("not a number"); got < 0 || got >= 8 {
		t.Errorf("shard out of range: %d", got)
	}
}
