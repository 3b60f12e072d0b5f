package intent

import (
	"context"
	"testing"
	"time"
)

func TestClassifyHeuristic(t *testing.T) {
	c := New(nil, nil)
	ctx := context.Background()

	cases := []struct {
		name       string
		query      string
		wantIntent Kind
		minConf    float64
	}{
		{"why_decision", "why did we choose X", Why, 0.8},
		{"when_recency", "what happened last week?", When, 0.5},
		{"entity_owner", "who owns the crawler?", Entity, 0.8},
		{"what_definition", "what is a fragment?", What, 0.5},
		{"how_question", "how does the splitter work?", What, 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := c.Classify(ctx, tc.query)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if result.Intent != tc.wantIntent {
				t.Fatalf("intent: got %v, want %v (confidence %v)", result.Intent, tc.wantIntent, result.Confidence)
			}
			if result.Confidence < tc.minConf {
				t.Errorf("confidence: got %v, want >= %v", result.Confidence, tc.minConf)
			}
		})
	}
}

func TestClassifyWhenSetsTemporalWindow(t *testing.T) {
	c := New(nil, nil)
	result, err := c.Classify(context.Background(), "what happened last week?")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Intent != When {
		t.Fatalf("expected WHEN, got %v", result.Intent)
	}
	if result.TemporalStart == "" || result.TemporalEnd == "" {
		t.Fatalf("expected a temporal window, got start=%q end=%q", result.TemporalStart, result.TemporalEnd)
	}

	now := time.Now()
	wantEnd := now.Truncate(24 * time.Hour).Format(isoDate)
	wantStart := now.Truncate(24 * time.Hour).AddDate(0, 0, -7).Format(isoDate)
	if result.TemporalEnd != wantEnd {
		t.Errorf("temporal end: got %q, want %q", result.TemporalEnd, wantEnd)
	}
	if result.TemporalStart != wantStart {
		t.Errorf("temporal start: got %q, want %q", result.TemporalStart, wantStart)
	}
}

func TestWeightsForUnknownDefaultsToWhat(t *testing.T) {
	if got, want := WeightsFor(Kind("BOGUS")), WeightsFor(What); got != want {
		t.Errorf("expected unknown kind to default to WHAT's weights, got %+v want %+v", got, want)
	}
}
