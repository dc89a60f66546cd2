package reconciliation

import (
	"context"
	"slices"
	"time"

	"tillpoint/internal/cache"
	"tillpoint/internal/domain"
	"tillpoint/internal/money"
)

// Calculator derives cash-up reports from the shift ledger. Reports for
// closed shifts are immutable and can be served from cache; reports for
// open shifts are always recomputed.
type Calculator struct {
	cache    cache.CashUpCache
	cacheTTL time.Duration
}

func NewCalculator(cacheStore cache.CashUpCache, cacheTTL time.Duration) *Calculator {
	if cacheStore == nil {
		cacheStore = cache.NoopCashUpCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Calculator{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (c *Calculator) Report(
	ctx context.Context,
	shift domain.Shift,
	transactions []domain.Transaction,
	refunds []domain.RefundEntry,
	withdrawals []domain.WithdrawalEntry,
) domain.CashUpReport {
	closed := shift.Status == domain.ShiftStatusClosed

	if closed {
		if cached, ok, err := c.cache.Get(ctx, shift.ID); err == nil && ok {
			cached.FromClosedData = true
			return *cached
		}
	}

	cashSales := money.Zero
	byMethod := make(map[string]money.Money)
	for _, tx := range transactions {
		for _, alloc := range tx.Allocations {
			byMethod[alloc.Method] = byMethod[alloc.Method].Add(alloc.Amount)
			if alloc.Method == domain.MethodCash {
				cashSales = cashSales.Add(alloc.Amount)
			}
		}
	}

	cashRefunds := money.Zero
	refundTotal := money.Zero
	refundsByItem := make(map[string]*domain.RefundBreakdownLine)
	for _, entry := range refunds {
		refundTotal = refundTotal.Add(entry.Amount)
		if entry.Method == domain.MethodCash {
			cashRefunds = cashRefunds.Add(entry.Amount)
		}
		line, exists := refundsByItem[entry.ProductID]
		if !exists {
			line = &domain.RefundBreakdownLine{ProductID: entry.ProductID}
			refundsByItem[entry.ProductID] = line
		}
		line.Qty += entry.Qty
		line.Amount = line.Amount.Add(entry.Amount)
	}

	withdrawn := money.Zero
	for _, entry := range withdrawals {
		withdrawn = withdrawn.Add(entry.Amount)
	}

	expectedCash := shift.StartFloat.Add(cashSales).Sub(cashRefunds).Sub(withdrawn)

	report := domain.CashUpReport{
		ShiftID:        shift.ID,
		Status:         shift.Status,
		StartFloat:     shift.StartFloat,
		CashSales:      cashSales,
		CashRefunds:    cashRefunds,
		Withdrawals:    withdrawn,
		ExpectedCash:   expectedCash,
		ByMethod:       methodBreakdown(byMethod),
		RefundTotal:    refundTotal,
		RefundsByItem:  refundLines(refundsByItem),
		Transactions:   len(transactions),
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
		FromClosedData: closed,
	}

	if closed && shift.EndFloat != nil {
		counted := *shift.EndFloat
		variance := counted.Sub(expectedCash)
		report.CountedCash = &counted
		report.Variance = &variance
	}

	if closed {
		_ = c.cache.Set(ctx, shift.ID, report, c.cacheTTL)
	}

	return report
}

func methodBreakdown(byMethod map[string]money.Money) []domain.MethodBreakdown {
	breakdown := make([]domain.MethodBreakdown, 0, len(byMethod))
	for method, total := range byMethod {
		breakdown = append(breakdown, domain.MethodBreakdown{Method: method, Total: total})
	}
	slices.SortFunc(breakdown, func(a, b domain.MethodBreakdown) int {
		if a.Method == b.Method {
			return 0
		}
		if a.Method < b.Method {
			return -1
		}
		return 1
	})
	return breakdown
}

func refundLines(byItem map[string]*domain.RefundBreakdownLine) []domain.RefundBreakdownLine {
	lines := make([]domain.RefundBreakdownLine, 0, len(byItem))
	for _, line := range byItem {
		lines = append(lines, *line)
	}
	slices.SortFunc(lines, func(a, b domain.RefundBreakdownLine) int {
		if a.ProductID == b.ProductID {
			return 0
		}
		if a.ProductID < b.ProductID {
			return -1
		}
		return 1
	})
	return lines
}
