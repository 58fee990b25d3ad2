package search

import (
	"strings"
	"testing"
	"time"
)

func TestStrategyForName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"smart", "smart"},
		{"legacy", "legacy"},
		{"LEGACY", "legacy"},
		{"", "smart"},
		{"unknown", "smart"},
	}
	for _, tt := range tests {
		if got := StrategyForName(tt.name).Name(); got != tt.want {
			t.Errorf("StrategyForName(%q).Name() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLegacyKeywordQuery(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	provider, variations := LegacyKeywordStrategy{}.BuildQuery("decathlon", 3, now)

	if !strings.HasPrefix(provider, "has:attachment (decathlon) (") {
		t.Errorf("provider query = %q", provider)
	}
	// The legacy query ANDs the full keyword list, first to last.
	for _, kw := range []string{"factura", "invoice", "nota"} {
		if !strings.Contains(provider, kw) {
			t.Errorf("provider query missing keyword %q: %q", kw, provider)
		}
	}
	if !strings.HasSuffix(provider, " after:2025/03/15") {
		t.Errorf("provider query missing date bound: %q", provider)
	}
	if variations != nil {
		t.Errorf("legacy strategy returned variations %v, want nil", variations)
	}
}

func TestLegacyKeywordQueryNoLookback(t *testing.T) {
	provider, _ := LegacyKeywordStrategy{}.BuildQuery("acme", 0, time.Now())
	if strings.Contains(provider, "after:") {
		t.Errorf("zero lookback should omit date bound: %q", provider)
	}
}

func TestLegacyValidateKeepsEverything(t *testing.T) {
	rec := MessageRecord{Subject: "completely unrelated"}
	if !(LegacyKeywordStrategy{}).Validate(&rec, []string{"decathlon"}) {
		t.Error("legacy strategy must keep all provider results")
	}
}

func TestSmartStrategyDelegates(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	provider, variations := SmartStrategy{}.BuildQuery("decathlon", 3, now)

	if !strings.Contains(provider, "has:attachment") {
		t.Errorf("provider query = %q", provider)
	}
	if len(variations) == 0 {
		t.Fatal("smart strategy returned no variations")
	}

	rec := MessageRecord{Snippet: "Tu pedido Decathlon está en camino"}
	if !(SmartStrategy{}).Validate(&rec, variations) {
		t.Errorf("record should validate against variations %v", variations)
	}
	miss := MessageRecord{Subject: "Weekly digest"}
	if (SmartStrategy{}).Validate(&miss, variations) {
		t.Error("unrelated record should be rejected")
	}
}
