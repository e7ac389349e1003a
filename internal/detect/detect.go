// Package detect finds structural fraud signatures in the transfer graph.
package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// TransferSource supplies SENT_TO edges for a scan. Satisfied by
// domain.GraphStore.
type TransferSource interface {
	TransfersAbove(ctx context.Context, floor float64) ([]domain.Transfer, error)
}

// Detector walks the transfer graph looking for circular mule networks
// and fee-decay chains. A detector is stateless between scans; each
// Scan loads a fresh snapshot of the graph.
type Detector struct {
	src TransferSource
	cfg domain.ScanConfig
}

// NewDetector creates a detector over the given transfer source.
func NewDetector(src TransferSource, cfg domain.ScanConfig) *Detector {
	return &Detector{src: src, cfg: cfg}
}

// edge is one outgoing transfer in the in-memory adjacency form.
type edge struct {
	to     int32
	amount float64
}

// graph is a compact adjacency view of the transfer snapshot. Account
// ids are interned to int32 indices so the traversal compares ints,
// not strings.
type graph struct {
	ids []string
	out [][]edge
}

func buildGraph(transfers []domain.Transfer) *graph {
	index := make(map[string]int32)
	g := &graph{}

	intern := func(id string) int32 {
		if n, ok := index[id]; ok {
			return n
		}
		n := int32(len(g.ids))
		index[id] = n
		g.ids = append(g.ids, id)
		g.out = append(g.out, nil)
		return n
	}

	for _, t := range transfers {
		from := intern(t.FromID)
		to := intern(t.ToID)
		g.out[from] = append(g.out[from], edge{to: to, amount: t.Amount})
	}
	return g
}

// Scan loads the transfer snapshot and returns every detected pattern.
// The context bounds the whole scan; a cancelled scan returns the
// context error, never a partial result.
func (d *Detector) Scan(ctx context.Context) ([]domain.Pattern, error) {
	floor := d.cfg.CycleFloor
	if d.cfg.DecayLowFloor < floor {
		floor = d.cfg.DecayLowFloor
	}

	transfers, err := d.src.TransfersAbove(ctx, floor)
	if err != nil {
		return nil, fmt.Errorf("loading transfer snapshot: %w", err)
	}

	g := buildGraph(transfers)

	patterns, err := d.findCycles(ctx, g)
	if err != nil {
		return nil, err
	}

	decay, err := d.findDecayChains(ctx, g)
	if err != nil {
		return nil, err
	}

	patterns = append(patterns, decay...)
	return patterns, nil
}

// findCycles detects directed three-cycles A->B->C->A where every leg
// is strictly above the cycle floor. A cycle is reported once: only
// the rotation starting at the lexicographically smallest account id
// is emitted, so A->B->C->A, B->C->A->B and C->A->B->C collapse to one
// pattern.
func (d *Detector) findCycles(ctx context.Context, g *graph) ([]domain.Pattern, error) {
	var patterns []domain.Pattern
	seen := make(map[string]bool)

	for a := int32(0); a < int32(len(g.ids)); a++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, ab := range g.out[a] {
			b := ab.to
			if b == a || ab.amount <= d.cfg.CycleFloor {
				continue
			}
			// Canonical rotation starts at the smallest id.
			if g.ids[a] >= g.ids[b] {
				continue
			}
			for _, bc := range g.out[b] {
				c := bc.to
				if c == a || c == b || bc.amount <= d.cfg.CycleFloor {
					continue
				}
				if g.ids[a] >= g.ids[c] {
					continue
				}
				for _, ca := range g.out[c] {
					if ca.to != a || ca.amount <= d.cfg.CycleFloor {
						continue
					}

					key := fmt.Sprintf("%s|%s|%s|%g|%g|%g",
						g.ids[a], g.ids[b], g.ids[c], ab.amount, bc.amount, ca.amount)
					if seen[key] {
						continue
					}
					seen[key] = true

					amt3 := ca.amount
					patterns = append(patterns, domain.Pattern{
						Account1: g.ids[a],
						Account2: g.ids[b],
						Account3: g.ids[c],
						Amount1:  ab.amount,
						Amount2:  bc.amount,
						Amount3:  &amt3,
						Kind:     domain.PatternCircularMule,
					})
				}
			}
		}
	}

	sortPatterns(patterns)
	return patterns, nil
}

// findDecayChains detects two-hop chains A->B->C where a large first
// transfer is followed by a slightly smaller onward transfer, the
// shrinkage staying within the tolerance. The third amount is absent:
// the chain continues beyond the matched window. C may coincide with A
// since the signature is about amount decay, not topology.
func (d *Detector) findDecayChains(ctx context.Context, g *graph) ([]domain.Pattern, error) {
	var patterns []domain.Pattern

	for a := int32(0); a < int32(len(g.ids)); a++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, ab := range g.out[a] {
			b := ab.to
			if b == a || ab.amount <= d.cfg.DecayHighFloor {
				continue
			}
			for _, bc := range g.out[b] {
				c := bc.to
				if c == b || bc.amount <= d.cfg.DecayLowFloor {
					continue
				}
				if ab.amount <= bc.amount {
					continue
				}
				if ab.amount-bc.amount >= d.cfg.DecayTolerance {
					continue
				}

				patterns = append(patterns, domain.Pattern{
					Account1: g.ids[a],
					Account2: g.ids[b],
					Account3: g.ids[c],
					Amount1:  ab.amount,
					Amount2:  bc.amount,
					Kind:     domain.PatternFeeDecay,
				})
			}
		}
	}

	sortPatterns(patterns)
	return patterns, nil
}

// sortPatterns orders output deterministically so repeated scans of an
// unchanged graph produce identical results.
func sortPatterns(patterns []domain.Pattern) {
	sort.Slice(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.Account1 != b.Account1 {
			return a.Account1 < b.Account1
		}
		if a.Account2 != b.Account2 {
			return a.Account2 < b.Account2
		}
		if a.Account3 != b.Account3 {
			return a.Account3 < b.Account3
		}
		return a.Amount1 < b.Amount1
	})
}
