// Package execution simulates order execution for dispatched signals.
//
// The paper executor is the default execution collaborator behind the
// trading queue. It fills every order at the signal price adjusted by a
// configurable slippage, records the fill, and reports success back to the
// dispatcher. No real broker is involved.
package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tradebotv1/internal/model"
	"tradebotv1/internal/queue"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string       `json:"order_id"`
	Signal    model.Signal `json:"signal"`
	FillPrice float64      `json:"fill_price"`
	FilledAt  time.Time    `json:"filled_at"`
	Slippage  float64      `json:"slippage"` // price delta applied against us
}

// PaperExecutor simulates order execution without real broker calls.
type PaperExecutor struct {
	mu       sync.RWMutex
	fills    []Fill
	orderSeq int64

	slippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
	journal     *Journal
}

// NewPaperExecutor creates a paper trading executor. journal may be nil.
func NewPaperExecutor(slippageBps float64, journal *Journal) *PaperExecutor {
	return &PaperExecutor{
		fills:       make([]Fill, 0, 1000),
		slippageBps: slippageBps,
		journal:     journal,
	}
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Execute fills the signal at its price adjusted by simulated slippage.
// Implements the queue's Executor boundary.
func (p *PaperExecutor) Execute(ctx context.Context, sig model.Signal) (queue.ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return queue.ExecResult{}, err
	}

	slippage := sig.Price * p.slippageBps / 10000
	fillPrice := sig.Price
	switch sig.Direction {
	case model.DirectionBuy:
		fillPrice += slippage // buy higher
	case model.DirectionSell:
		fillPrice -= slippage // sell lower
	default:
		return queue.ExecResult{
			Success: false,
			Message: fmt.Sprintf("non-actionable direction %s", sig.Direction),
		}, nil
	}

	p.mu.Lock()
	p.orderSeq++
	fill := Fill{
		OrderID:   fmt.Sprintf("PAPER-%d", p.orderSeq),
		Signal:    sig,
		FillPrice: fillPrice,
		FilledAt:  time.Now().UTC(),
		Slippage:  slippage,
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[paper] %s %s price=%.6f (slip=%.6f) order=%s signal=%s reason=%s",
		sig.Direction, sig.Pair, fillPrice, slippage, fill.OrderID, sig.ID, sig.Reason)

	if p.journal != nil {
		if err := p.journal.RecordFill(fill); err != nil {
			// The fill stands; journaling is best effort.
			log.Printf("[paper] journal write failed for %s: %v", fill.OrderID, err)
		}
	}

	return queue.ExecResult{
		Success:   true,
		ResultRef: fill.OrderID,
		Message:   fmt.Sprintf("paper filled at %.6f", fillPrice),
	}, nil
}
