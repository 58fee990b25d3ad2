package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/finwork/invoicefinder/internal/gmail"
)

// resultMessage builds a resolvable message whose subject contains text.
func resultMessage(subject string) *gmail.Message {
	return message("snippet", []gmail.Header{{Name: "Subject", Value: subject}})
}

func newTestPipeline(dialer *gmail.MockDialer, strategy Strategy) *Pipeline {
	agg := NewAggregator(dialer, WithLogger(testLogger()))
	p := NewPipeline(agg, strategy, 50, testLogger())
	p.nowFn = func() time.Time {
		return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	}
	return p
}

func TestPipelineFiltersFalsePositives(t *testing.T) {
	dialer := gmail.NewMockDialer()
	mb := dialer.Add("a@corp.example")
	mb.Candidates = []gmail.CandidateMessage{
		{ID: "hit", InternalDate: 200},
		{ID: "noise", InternalDate: 100},
	}
	mb.Messages["hit"] = resultMessage("Tu pedido Decathlon")
	mb.Messages["noise"] = resultMessage("Unrelated newsletter")

	p := newTestPipeline(dialer, SmartStrategy{})
	got, err := p.Run(context.Background(), "decathlon", 3, []string{"a@corp.example"}, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(got) != 1 || got[0].ID != "hit" {
		t.Fatalf("got %v, want only the validated record", got)
	}
}

func TestPipelineLegacyKeepsAll(t *testing.T) {
	dialer := gmail.NewMockDialer()
	mb := dialer.Add("a@corp.example")
	mb.Candidates = []gmail.CandidateMessage{
		{ID: "m1", InternalDate: 200},
		{ID: "m2", InternalDate: 100},
	}
	mb.Messages["m1"] = resultMessage("Unrelated one")
	mb.Messages["m2"] = resultMessage("Unrelated two")

	p := newTestPipeline(dialer, LegacyKeywordStrategy{})
	got, err := p.Run(context.Background(), "decathlon", 3, []string{"a@corp.example"}, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d records, want 2 (legacy keeps everything)", len(got))
	}
	if q := mb.LastQuery; !strings.Contains(q, "OR") {
		t.Errorf("legacy provider query should carry keyword OR-list: %q", q)
	}
}

func TestPipelineAcrossMailboxes(t *testing.T) {
	dialer := gmail.NewMockDialer()
	mailboxes := []string{"a@corp.example", "b@corp.example", "c@corp.example", "d@corp.example"}
	for i, m := range mailboxes {
		mb := dialer.Add(m)
		id := "msg-" + m
		mb.Candidates = []gmail.CandidateMessage{{ID: id, InternalDate: int64(100 * (i + 1))}}
		mb.Messages[id] = resultMessage("Pedido Decathlon " + m)
	}

	p := newTestPipeline(dialer, SmartStrategy{})
	got, err := p.Run(context.Background(), "Decathlon", 3, mailboxes, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d records, want one per mailbox", len(got))
	}
	// Newest first across mailboxes.
	if got[0].Mailbox != "d@corp.example" {
		t.Errorf("got[0].Mailbox = %s, want the newest message's mailbox", got[0].Mailbox)
	}
	for _, m := range mailboxes {
		if dialer.Mailboxes[m].ListCalls != 1 {
			t.Errorf("mailbox %s listed %d times, want 1", m, dialer.Mailboxes[m].ListCalls)
		}
	}
}

func TestPipelineCancelledContext(t *testing.T) {
	dialer := gmail.NewMockDialer()
	dialer.Add("a@corp.example")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(dialer, SmartStrategy{})
	_, err := p.Run(ctx, "decathlon", 3, []string{"a@corp.example"}, nil)
	if err == nil {
		t.Fatal("Run() with cancelled context should report the cancellation")
	}
}

func TestPipelineEmptyMailboxes(t *testing.T) {
	p := newTestPipeline(gmail.NewMockDialer(), SmartStrategy{})
	got, err := p.Run(context.Background(), "decathlon", 3, nil, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
