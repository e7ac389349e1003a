package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

type fakeSource struct {
	transfers []domain.Transfer
	err       error
}

func (f *fakeSource) TransfersAbove(ctx context.Context, floor float64) ([]domain.Transfer, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Transfer
	for _, t := range f.transfers {
		if t.Amount > floor {
			out = append(out, t)
		}
	}
	return out, nil
}

func testConfig() domain.ScanConfig {
	return domain.ScanConfig{
		CycleFloor:     50000,
		DecayHighFloor: 90000,
		DecayLowFloor:  80000,
		DecayTolerance: 5000,
	}
}

func transferEdge(from, to string, amount float64) domain.Transfer {
	return domain.Transfer{FromID: from, ToID: to, Amount: amount, Timestamp: time.Now().UTC()}
}

func scanWith(t *testing.T, transfers []domain.Transfer) []domain.Pattern {
	t.Helper()
	d := NewDetector(&fakeSource{transfers: transfers}, testConfig())
	patterns, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return patterns
}

func TestCycleDetection(t *testing.T) {
	t.Run("ThreeCycle", func(t *testing.T) {
		patterns := scanWith(t, []domain.Transfer{
			transferEdge("acc-a", "acc-b", 60000),
			transferEdge("acc-b", "acc-c", 70000),
			transferEdge("acc-c", "acc-a", 55000),
		})

		if len(patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(patterns))
		}
		p := patterns[0]
		if p.Kind != domain.PatternCircularMule {
			t.Errorf("expected circular mule, got %s", p.Kind)
		}
		if p.Account1 != "acc-a" || p.Account2 != "acc-b" || p.Account3 != "acc-c" {
			t.Errorf("unexpected cycle accounts: %s -> %s -> %s", p.Account1, p.Account2, p.Account3)
		}
		if p.Amount3 == nil || *p.Amount3 != 55000 {
			t.Errorf("expected closing amount 55000, got %v", p.Amount3)
		}
	})

	t.Run("RotationsCollapse", func(t *testing.T) {
		// Same cycle entered from every account; only the rotation
		// starting at the smallest id is reported.
		patterns := scanWith(t, []domain.Transfer{
			transferEdge("acc-c", "acc-a", 55000),
			transferEdge("acc-b", "acc-c", 70000),
			transferEdge("acc-a", "acc-b", 60000),
		})

		if len(patterns) != 1 {
			t.Fatalf("expected 1 pattern after rotation dedup, got %d", len(patterns))
		}
		if patterns[0].Account1 != "acc-a" {
			t.Errorf("expected canonical start acc-a, got %s", patterns[0].Account1)
		}
	})

	t.Run("LegBelowFloorBreaksCycle", func(t *testing.T) {
		patterns := scanWith(t, []domain.Transfer{
			transferEdge("acc-a", "acc-b", 60000),
			transferEdge("acc-b", "acc-c", 70000),
			transferEdge("acc-c", "acc-a", 50000), // exactly at floor, not above
		})
		if len(patterns) != 0 {
			t.Errorf("expected no patterns, got %d", len(patterns))
		}
	})

	t.Run("TwoCycleIgnored", func(t *testing.T) {
		patterns := scanWith(t, []domain.Transfer{
			transferEdge("acc-a", "acc-b", 60000),
			transferEdge("acc-b", "acc-a", 60000),
		})
		if len(patterns) != 0 {
			t.Errorf("expected no patterns for a 2-cycle, got %d", len(patterns))
		}
	})
}

func TestDecayDetection(t *testing.T) {
	t.Run("DecayChain", func(t *testing.T) {
		patterns := scanWith(t, []domain.Transfer{
			transferEdge("acc-a", "acc-b", 95000),
			transferEdge("acc-b", "acc-c", 92000),
		})

		if len(patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(patterns))
		}
		p := patterns[0]
		if p.Kind != domain.PatternFeeDecay {
			t.Errorf("expected fee decay, got %s", p.Kind)
		}
		if p.Amount1 != 95000 || p.Amount2 != 92000 {
			t.Errorf("unexpected amounts: %.0f, %.0f", p.Amount1, p.Amount2)
		}
		if p.Amount3 != nil {
			t.Errorf("expected absent third amount, got %v", *p.Amount3)
		}
	})

	t.Run("ShrinkageOutsideTolerance", func(t *testing.T) {
		patterns := scanWith(t, []domain.Transfer{
			transferEdge("acc-a", "acc-b", 99000),
			transferEdge("acc-b", "acc-c", 93000), // drops by 6000
		})
		if len(patterns) != 0 {
			t.Errorf("expected no patterns, got %d", len(patterns))
		}
	})

	t.Run("SecondLegTooSmall", func(t *testing.T) {
		patterns := scanWith(t, []domain.Transfer{
			transferEdge("acc-a", "acc-b", 91000),
			transferEdge("acc-b", "acc-c", 80000), // exactly at floor, not above
		})
		if len(patterns) != 0 {
			t.Errorf("expected no patterns, got %d", len(patterns))
		}
	})

	t.Run("GrowingAmountIgnored", func(t *testing.T) {
		patterns := scanWith(t, []domain.Transfer{
			transferEdge("acc-a", "acc-b", 92000),
			transferEdge("acc-b", "acc-c", 94000),
		})
		if len(patterns) != 0 {
			t.Errorf("expected no patterns, got %d", len(patterns))
		}
	})

	t.Run("ChainMayReturnToOrigin", func(t *testing.T) {
		patterns := scanWith(t, []domain.Transfer{
			transferEdge("acc-a", "acc-b", 95000),
			transferEdge("acc-b", "acc-a", 92000),
		})
		if len(patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(patterns))
		}
		if patterns[0].Account3 != "acc-a" {
			t.Errorf("expected chain back to acc-a, got %s", patterns[0].Account3)
		}
	})
}

func TestScanBothKinds(t *testing.T) {
	patterns := scanWith(t, []domain.Transfer{
		// Mule ring
		transferEdge("acc-a", "acc-b", 60000),
		transferEdge("acc-b", "acc-c", 70000),
		transferEdge("acc-c", "acc-a", 55000),
		// Decay chain
		transferEdge("acc-x", "acc-y", 95000),
		transferEdge("acc-y", "acc-z", 92000),
	})

	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}

	kinds := map[string]int{}
	for _, p := range patterns {
		kinds[p.Kind]++
	}
	if kinds[domain.PatternCircularMule] != 1 || kinds[domain.PatternFeeDecay] != 1 {
		t.Errorf("unexpected pattern kinds: %v", kinds)
	}
}

func TestScanDeterministic(t *testing.T) {
	transfers := []domain.Transfer{
		transferEdge("acc-a", "acc-b", 60000),
		transferEdge("acc-b", "acc-c", 70000),
		transferEdge("acc-c", "acc-a", 55000),
		transferEdge("acc-a", "acc-d", 95000),
		transferEdge("acc-d", "acc-e", 92000),
	}

	first := scanWith(t, transfers)
	second := scanWith(t, transfers)

	if len(first) != len(second) {
		t.Fatalf("scan sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Account1 != second[i].Account1 || first[i].Kind != second[i].Kind {
			t.Errorf("scan order differs at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestScanCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDetector(&fakeSource{transfers: []domain.Transfer{
		transferEdge("acc-a", "acc-b", 60000),
	}}, testConfig())

	_, err := d.Scan(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestScanSourceError(t *testing.T) {
	wantErr := errors.New("boom")
	d := NewDetector(&fakeSource{err: wantErr}, testConfig())

	_, err := d.Scan(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}
