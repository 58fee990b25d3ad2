package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/finwork/invoicefinder/internal/gmail"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidate(id string, ts int64) gmail.CandidateMessage {
	return gmail.CandidateMessage{ID: id, InternalDate: ts}
}

func TestSearchMergesAndSorts(t *testing.T) {
	dialer := gmail.NewMockDialer()
	dialer.Add("a@corp.example").Candidates = []gmail.CandidateMessage{
		candidate("a1", 300), candidate("a2", 100),
	}
	dialer.Add("b@corp.example").Candidates = []gmail.CandidateMessage{
		candidate("b1", 200), candidate("b2", 400),
	}

	agg := NewAggregator(dialer, WithLogger(testLogger()))
	got := agg.Search(context.Background(), "q", 50,
		[]string{"a@corp.example", "b@corp.example"}, nil)

	wantOrder := []string{"b2", "a1", "b1", "a2"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d candidates, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("result[%d].ID = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestSearchStableSortOnTimestampTie(t *testing.T) {
	dialer := gmail.NewMockDialer()
	// Single mailbox so arrival order is deterministic.
	dialer.Add("a@corp.example").Candidates = []gmail.CandidateMessage{
		candidate("first", 100), candidate("second", 100), candidate("third", 100),
	}

	agg := NewAggregator(dialer, WithLogger(testLogger()))
	got := agg.Search(context.Background(), "q", 50, []string{"a@corp.example"}, nil)

	wantOrder := []string{"first", "second", "third"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("result[%d].ID = %s, want %s (stable order)", i, got[i].ID, id)
		}
	}
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	dialer := gmail.NewMockDialer()
	mb := dialer.Add("a@corp.example")
	for i := 0; i < 10; i++ {
		mb.Candidates = append(mb.Candidates, candidate(string(rune('a'+i)), int64(i)))
	}

	agg := NewAggregator(dialer, WithLogger(testLogger()))
	got := agg.Search(context.Background(), "q", 3, []string{"a@corp.example"}, nil)

	if len(got) != 3 {
		t.Errorf("got %d results, want 3", len(got))
	}
}

func TestPerMailboxCap(t *testing.T) {
	dialer := gmail.NewMockDialer()
	mailboxes := []string{"a@x", "b@x", "c@x", "d@x"}
	for _, m := range mailboxes {
		dialer.Add(m)
	}

	agg := NewAggregator(dialer, WithLogger(testLogger()))
	agg.Search(context.Background(), "q", 50, mailboxes, nil)

	// ceil(50/4) = 13
	for _, m := range mailboxes {
		if got := dialer.Mailboxes[m].LastMaxResults; got != 13 {
			t.Errorf("mailbox %s cap = %d, want 13", m, got)
		}
	}
}

func TestPerMailboxCapMinimumOne(t *testing.T) {
	dialer := gmail.NewMockDialer()
	mailboxes := make([]string, 10)
	for i := range mailboxes {
		mailboxes[i] = string(rune('a'+i)) + "@x"
		dialer.Add(mailboxes[i])
	}

	agg := NewAggregator(dialer, WithLogger(testLogger()))
	agg.Search(context.Background(), "q", 5, mailboxes, nil)

	for _, m := range mailboxes {
		if got := dialer.Mailboxes[m].LastMaxResults; got != 1 {
			t.Errorf("mailbox %s cap = %d, want 1", m, got)
		}
	}
}

func TestFailingMailboxExcludedNotFatal(t *testing.T) {
	dialer := gmail.NewMockDialer()
	dialer.Add("dead@x").ListError = errors.New("permission denied")
	dialer.Add("alive@x").Candidates = []gmail.CandidateMessage{candidate("m1", 100)}

	agg := NewAggregator(dialer, WithLogger(testLogger()))
	got := agg.Search(context.Background(), "q", 50, []string{"dead@x", "alive@x"}, nil)

	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("got %v, want the single candidate from the healthy mailbox", got)
	}
}

func TestDialFailureExcludedNotFatal(t *testing.T) {
	dialer := gmail.NewMockDialer()
	dialer.DialError["broken@x"] = errors.New("no delegated credential")
	dialer.Add("alive@x").Candidates = []gmail.CandidateMessage{candidate("m1", 100)}

	agg := NewAggregator(dialer, WithLogger(testLogger()))
	got := agg.Search(context.Background(), "q", 50, []string{"broken@x", "alive@x"}, nil)

	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
}

func TestProgressEvents(t *testing.T) {
	dialer := gmail.NewMockDialer()
	mailboxes := make([]string, 7)
	for i := range mailboxes {
		mailboxes[i] = string(rune('a'+i)) + "@x"
		dialer.Add(mailboxes[i])
	}

	agg := NewAggregator(dialer, WithBatchSize(3), WithLogger(testLogger()))

	type event struct{ processed, total int }
	var events []event
	agg.Search(context.Background(), "q", 50, mailboxes, func(processed, total int) {
		events = append(events, event{processed, total})
	})

	want := []event{{3, 7}, {6, 7}, {7, 7}}
	if len(events) != len(want) {
		t.Fatalf("got %d progress events, want %d", len(events), len(want))
	}
	for i, e := range want {
		if events[i] != e {
			t.Errorf("event[%d] = %+v, want %+v", i, events[i], e)
		}
	}
	// Non-decreasing, ending at total.
	for i := 1; i < len(events); i++ {
		if events[i].processed < events[i-1].processed {
			t.Error("progress not monotonically increasing")
		}
	}
	if last := events[len(events)-1]; last.processed != last.total {
		t.Errorf("final event processed = %d, want total %d", last.processed, last.total)
	}
}

func TestProgressSingleBatch(t *testing.T) {
	dialer := gmail.NewMockDialer()
	dialer.Add("a@x")

	agg := NewAggregator(dialer, WithBatchSize(20), WithLogger(testLogger()))

	calls := 0
	agg.Search(context.Background(), "q", 50, []string{"a@x"}, func(processed, total int) {
		calls++
		if processed != 1 || total != 1 {
			t.Errorf("progress = (%d, %d), want (1, 1)", processed, total)
		}
	})
	if calls != 1 {
		t.Errorf("progress fired %d times, want exactly once per batch", calls)
	}
}

func TestSearchEmptyMailboxSet(t *testing.T) {
	agg := NewAggregator(gmail.NewMockDialer(), WithLogger(testLogger()))
	if got := agg.Search(context.Background(), "q", 50, nil, nil); got != nil {
		t.Errorf("got %v, want nil for empty mailbox set", got)
	}
}

func TestSearchPassesProviderQuery(t *testing.T) {
	dialer := gmail.NewMockDialer()
	dialer.Add("a@x")

	agg := NewAggregator(dialer, WithLogger(testLogger()))
	agg.Search(context.Background(), `has:attachment ("acme")`, 50, []string{"a@x"}, nil)

	if got := dialer.Mailboxes["a@x"].LastQuery; got != `has:attachment ("acme")` {
		t.Errorf("LastQuery = %q", got)
	}
}
