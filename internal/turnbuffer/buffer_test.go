package turnbuffer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
)

type captureSink struct {
	turns []models.BufferedTurn
}

func (s *captureSink) Enqueue(ctx context.Context, turn models.BufferedTurn) error {
	s.turns = append(s.turns, turn)
	return nil
}

func testConfig() Config {
	return Config{
		SessionID:    "test-session",
		TimeBudget:   60 * time.Second,
		SizeBudget:   2000,
		SilenceFlush: 5 * time.Second,
	}
}

var base = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

// unitAt builds a speech unit whose timestamp is offset from a fixed base,
// so budget arithmetic in tests is deterministic.
func unitAt(seq uint64, text, speaker string, offset, duration time.Duration) models.SpeechUnit {
	return models.SpeechUnit{
		SessionID: "test-session",
		Seq:       seq,
		Text:      text,
		Speaker:   speaker,
		Timestamp: base.Add(offset),
		Duration:  duration,
	}
}

func feed(t *testing.T, b *Buffer, units ...models.SpeechUnit) {
	t.Helper()
	for _, u := range units {
		if err := b.Add(context.Background(), u); err != nil {
			t.Fatalf("unexpected add error for seq %d: %v", u.Seq, err)
		}
	}
}

func TestBuffer_SpeakerChangeFlush(t *testing.T) {
	sink := &captureSink{}
	b, err := NewBuffer(testConfig(), sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	feed(t, b,
		unitAt(0, "Dobrý den", "SPEAKER_00", 0, 4*time.Second),
		unitAt(1, "jak se máte", "SPEAKER_00", 4*time.Second, 4*time.Second),
		unitAt(2, "Ahoj", "SPEAKER_01", 8*time.Second, 4*time.Second),
	)

	if len(sink.turns) != 1 {
		t.Fatalf("expected 1 flushed turn, got %d", len(sink.turns))
	}
	turn := sink.turns[0]
	if turn.Reason != models.FlushSpeakerChange {
		t.Errorf("expected speaker_change, got %s", turn.Reason)
	}
	if turn.Speaker != "SPEAKER_00" {
		t.Errorf("expected SPEAKER_00, got %q", turn.Speaker)
	}
	if turn.Text != "Dobrý den jak se máte" {
		t.Errorf("unexpected turn text: %q", turn.Text)
	}
	if turn.Units != 2 {
		t.Errorf("expected 2 units, got %d", turn.Units)
	}

	// The triggering unit opens the next turn.
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if len(sink.turns) != 2 {
		t.Fatalf("expected 2 turns after close, got %d", len(sink.turns))
	}
	if sink.turns[1].Speaker != "SPEAKER_01" || sink.turns[1].Text != "Ahoj" {
		t.Errorf("unexpected second turn: %+v", sink.turns[1])
	}
}

func TestBuffer_TimeBudgetFlush(t *testing.T) {
	cfg := testConfig()
	cfg.TimeBudget = 12 * time.Second
	sink := &captureSink{}
	b, _ := NewBuffer(cfg, sink)

	feed(t, b,
		unitAt(0, "one", "SPEAKER_00", 0, 4*time.Second),
		unitAt(1, "two", "SPEAKER_00", 4*time.Second, 4*time.Second),
		unitAt(2, "three", "SPEAKER_00", 8*time.Second, 4*time.Second),
	)

	if len(sink.turns) != 1 {
		t.Fatalf("expected 1 flushed turn, got %d", len(sink.turns))
	}
	if sink.turns[0].Reason != models.FlushTimeBudget {
		t.Errorf("expected time_budget, got %s", sink.turns[0].Reason)
	}
	if sink.turns[0].Text != "one two three" {
		t.Errorf("unexpected text: %q", sink.turns[0].Text)
	}
}

func TestBuffer_SizeBudgetFlush(t *testing.T) {
	cfg := testConfig()
	cfg.SizeBudget = 100
	sink := &captureSink{}
	b, _ := NewBuffer(cfg, sink)

	long := strings.Repeat("a", 60)
	feed(t, b,
		unitAt(0, long, "SPEAKER_00", 0, 4*time.Second),
		unitAt(1, long, "SPEAKER_00", 4*time.Second, 4*time.Second),
	)

	if len(sink.turns) != 1 {
		t.Fatalf("expected 1 flushed turn, got %d", len(sink.turns))
	}
	if sink.turns[0].Reason != models.FlushSizeBudget {
		t.Errorf("expected size_budget, got %s", sink.turns[0].Reason)
	}
}

func TestBuffer_TimeBudgetBeatsSizeBudget(t *testing.T) {
	// One unit crosses both budgets; time wins by priority.
	cfg := testConfig()
	cfg.TimeBudget = 8 * time.Second
	cfg.SizeBudget = 10
	sink := &captureSink{}
	b, _ := NewBuffer(cfg, sink)

	feed(t, b, unitAt(0, strings.Repeat("x", 20), "SPEAKER_00", 0, 10*time.Second))

	if len(sink.turns) != 1 {
		t.Fatalf("expected 1 flushed turn, got %d", len(sink.turns))
	}
	if sink.turns[0].Reason != models.FlushTimeBudget {
		t.Errorf("expected time_budget to win, got %s", sink.turns[0].Reason)
	}
}

func TestBuffer_SilenceFlush(t *testing.T) {
	sink := &captureSink{}
	b, _ := NewBuffer(testConfig(), sink)

	feed(t, b,
		unitAt(0, "Dobrý den", "SPEAKER_00", 0, 4*time.Second),
		unitAt(1, "", "", 4*time.Second, 4*time.Second),
	)
	if len(sink.turns) != 0 {
		t.Fatalf("expected no flush below silence threshold, got %d", len(sink.turns))
	}

	feed(t, b, unitAt(2, "", "", 8*time.Second, 4*time.Second))
	if len(sink.turns) != 1 {
		t.Fatalf("expected silence flush, got %d turns", len(sink.turns))
	}
	if sink.turns[0].Reason != models.FlushSilence {
		t.Errorf("expected silence, got %s", sink.turns[0].Reason)
	}
	if sink.turns[0].Text != "Dobrý den" {
		t.Errorf("unexpected text: %q", sink.turns[0].Text)
	}
}

func TestBuffer_SpeechResetsSilence(t *testing.T) {
	sink := &captureSink{}
	b, _ := NewBuffer(testConfig(), sink)

	feed(t, b,
		unitAt(0, "první", "SPEAKER_00", 0, 4*time.Second),
		unitAt(1, "", "", 4*time.Second, 4*time.Second),
		unitAt(2, "druhý", "SPEAKER_00", 8*time.Second, 4*time.Second),
		unitAt(3, "", "", 12*time.Second, 4*time.Second),
	)

	if len(sink.turns) != 0 {
		t.Fatalf("expected silence counter reset by speech, got %d turns", len(sink.turns))
	}
}

func TestBuffer_EmptyUnitsNeverOpenTurn(t *testing.T) {
	sink := &captureSink{}
	b, _ := NewBuffer(testConfig(), sink)

	feed(t, b,
		unitAt(0, "", "", 0, 4*time.Second),
		unitAt(1, "", "", 4*time.Second, 4*time.Second),
		unitAt(2, "", "", 8*time.Second, 4*time.Second),
	)
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if len(sink.turns) != 0 {
		t.Fatalf("expected no turns from silence-only input, got %d", len(sink.turns))
	}
}

func TestBuffer_SessionEndFlush(t *testing.T) {
	sink := &captureSink{}
	b, _ := NewBuffer(testConfig(), sink)

	feed(t, b, unitAt(0, "poslední slova", "SPEAKER_00", 0, 4*time.Second))
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	if len(sink.turns) != 1 {
		t.Fatalf("expected session end flush, got %d turns", len(sink.turns))
	}
	if sink.turns[0].Reason != models.FlushSessionEnd {
		t.Errorf("expected session_end, got %s", sink.turns[0].Reason)
	}
}

func TestBuffer_CloseIdempotent(t *testing.T) {
	sink := &captureSink{}
	b, _ := NewBuffer(testConfig(), sink)

	feed(t, b, unitAt(0, "ahoj", "SPEAKER_00", 0, 4*time.Second))
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
	if len(sink.turns) != 1 {
		t.Fatalf("expected exactly 1 turn, got %d", len(sink.turns))
	}

	if err := b.Add(context.Background(), unitAt(1, "pozdě", "SPEAKER_00", 4*time.Second, 4*time.Second)); err != ErrClosed {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestBuffer_UnresolvedSpeakerInherits(t *testing.T) {
	sink := &captureSink{}
	b, _ := NewBuffer(testConfig(), sink)

	feed(t, b,
		unitAt(0, "Dobrý den", "SPEAKER_00", 0, 4*time.Second),
		unitAt(1, "pokračuji", "", 4*time.Second, 4*time.Second),
	)
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	if len(sink.turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(sink.turns))
	}
	if sink.turns[0].Speaker != "SPEAKER_00" {
		t.Errorf("expected unresolved unit to inherit speaker, got %q", sink.turns[0].Speaker)
	}
	if sink.turns[0].Text != "Dobrý den pokračuji" {
		t.Errorf("unexpected text: %q", sink.turns[0].Text)
	}
}

func TestBuffer_UnresolvedSpeakerOpensUnknownTurn(t *testing.T) {
	sink := &captureSink{}
	b, _ := NewBuffer(testConfig(), sink)

	feed(t, b, unitAt(0, "kdo mluví", "", 0, 4*time.Second))
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	if len(sink.turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(sink.turns))
	}
	if sink.turns[0].Speaker != models.UnknownSpeaker {
		t.Errorf("expected unknown speaker label, got %q", sink.turns[0].Speaker)
	}
}

type flakySink struct {
	captureSink
	failures int
}

func (s *flakySink) Enqueue(ctx context.Context, turn models.BufferedTurn) error {
	if s.failures > 0 {
		s.failures--
		return context.Canceled
	}
	return s.captureSink.Enqueue(ctx, turn)
}

func TestBuffer_FailedEnqueueRetainsTurn(t *testing.T) {
	cfg := testConfig()
	cfg.TimeBudget = 60 * time.Second
	sink := &flakySink{failures: 1}
	b, err := NewBuffer(cfg, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The unit crosses the time budget; the flush it triggers fails.
	unit := unitAt(0, "ztracená slova", "SPEAKER_00", 0, 70*time.Second)
	if err := b.Add(context.Background(), unit); err == nil {
		t.Fatal("expected enqueue failure to surface from Add")
	}
	if len(sink.turns) != 0 {
		t.Fatalf("expected no turn delivered yet, got %d", len(sink.turns))
	}

	// Close runs against a recovered sink and must still carry the turn.
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if len(sink.turns) != 1 {
		t.Fatalf("turn was lost after failed enqueue, got %d turns", len(sink.turns))
	}
	if sink.turns[0].Text != "ztracená slova" {
		t.Errorf("unexpected text: %q", sink.turns[0].Text)
	}
	if sink.turns[0].Reason != models.FlushSessionEnd {
		t.Errorf("expected session_end on retry, got %s", sink.turns[0].Reason)
	}
}

func TestBuffer_FailedEnqueueRetriesOnNextTrigger(t *testing.T) {
	cfg := testConfig()
	cfg.SizeBudget = 10
	sink := &flakySink{failures: 1}
	b, _ := NewBuffer(cfg, sink)

	if err := b.Add(context.Background(), unitAt(0, strings.Repeat("a", 12), "SPEAKER_00", 0, 4*time.Second)); err == nil {
		t.Fatal("expected enqueue failure to surface from Add")
	}

	// The next unit re-crosses the size budget and re-flushes the
	// retained text together with its own.
	feed(t, b, unitAt(1, "b", "SPEAKER_00", 4*time.Second, 4*time.Second))
	if len(sink.turns) != 1 {
		t.Fatalf("expected retried flush, got %d turns", len(sink.turns))
	}
	if want := strings.Repeat("a", 12) + " b"; sink.turns[0].Text != want {
		t.Errorf("expected retained text %q, got %q", want, sink.turns[0].Text)
	}
	if sink.turns[0].Reason != models.FlushSizeBudget {
		t.Errorf("expected size_budget, got %s", sink.turns[0].Reason)
	}
}

func TestNewBuffer_Validation(t *testing.T) {
	sink := &captureSink{}

	if _, err := NewBuffer(Config{}, sink); err == nil {
		t.Error("expected error for empty config")
	}
	if _, err := NewBuffer(testConfig(), nil); err == nil {
		t.Error("expected error for nil sink")
	}

	cfg := testConfig()
	cfg.SizeBudget = 0
	if _, err := NewBuffer(cfg, sink); err == nil {
		t.Error("expected error for zero size budget")
	}
}
