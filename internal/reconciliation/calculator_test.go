package reconciliation

import (
	"context"
	"testing"
	"time"

	"tillpoint/internal/cache"
	"tillpoint/internal/domain"
	"tillpoint/internal/money"
)

func testShift(status string) domain.Shift {
	shift := domain.Shift{
		ID:         "shift-1",
		TillID:     "till-1",
		UserID:     "cashier",
		StartFloat: money.FromFloat(500),
		StartTime:  time.Now().UTC().Add(-4 * time.Hour),
		Status:     status,
	}
	if status == domain.ShiftStatusClosed {
		endFloat := money.FromFloat(575)
		endTime := time.Now().UTC()
		shift.EndFloat = &endFloat
		shift.EndTime = &endTime
	}
	return shift
}

func TestReportExpectedCash(t *testing.T) {
	calc := NewCalculator(cache.NoopCashUpCache{}, time.Minute)

	transactions := []domain.Transaction{
		{
			ID:      "tx-1",
			ShiftID: "shift-1",
			Total:   money.FromFloat(150),
			Allocations: []domain.PaymentAllocation{
				{Method: domain.MethodCash, Amount: money.FromFloat(150)},
			},
		},
		{
			ID:      "tx-2",
			ShiftID: "shift-1",
			Total:   money.FromFloat(80),
			Allocations: []domain.PaymentAllocation{
				{Method: domain.MethodCard, Amount: money.FromFloat(80)},
			},
		},
	}
	refunds := []domain.RefundEntry{
		{ID: "refund-1", ShiftID: "shift-1", ProductID: "prod-a", Qty: 2, Amount: money.FromFloat(20), Method: domain.MethodCash},
	}
	withdrawals := []domain.WithdrawalEntry{
		{ID: "wd-1", ShiftID: "shift-1", Amount: money.FromFloat(50), Reason: "banking"},
	}

	report := calc.Report(context.Background(), testShift(domain.ShiftStatusOpen), transactions, refunds, withdrawals)

	// 500 + 150 - 20 - 50 = 580
	if got := report.ExpectedCash.String(); got != "580.00" {
		t.Fatalf("expected cash 580.00, got %s", got)
	}
	if got := report.CashSales.String(); got != "150.00" {
		t.Fatalf("expected cash sales 150.00, got %s", got)
	}
	if len(report.ByMethod) != 2 {
		t.Fatalf("expected 2 method buckets, got %d", len(report.ByMethod))
	}
	// Sorted by method name: card before cash.
	if report.ByMethod[0].Method != domain.MethodCard || report.ByMethod[1].Method != domain.MethodCash {
		t.Fatalf("unexpected method order: %+v", report.ByMethod)
	}
	if len(report.RefundsByItem) != 1 || report.RefundsByItem[0].Qty != 2 {
		t.Fatalf("unexpected refund breakdown: %+v", report.RefundsByItem)
	}
	if report.CountedCash != nil || report.Variance != nil {
		t.Fatalf("open shift must not carry counted cash or variance")
	}
	if report.FromClosedData {
		t.Fatalf("open shift report must not be flagged as closed data")
	}
}

func TestReportClosedShiftVariance(t *testing.T) {
	calc := NewCalculator(cache.NoopCashUpCache{}, time.Minute)

	transactions := []domain.Transaction{
		{
			ID:      "tx-1",
			ShiftID: "shift-1",
			Total:   money.FromFloat(100),
			Allocations: []domain.PaymentAllocation{
				{Method: domain.MethodCash, Amount: money.FromFloat(100)},
			},
		},
	}

	report := calc.Report(context.Background(), testShift(domain.ShiftStatusClosed), transactions, nil, nil)

	// Expected 600, counted 575 -> variance -25.
	if report.CountedCash == nil || report.Variance == nil {
		t.Fatalf("closed shift must carry counted cash and variance")
	}
	if got := report.Variance.String(); got != "-25.00" {
		t.Fatalf("expected variance -25.00, got %s", got)
	}
	if !report.FromClosedData {
		t.Fatalf("closed shift report must be flagged as closed data")
	}
}

type stubCache struct {
	stored map[string]domain.CashUpReport
	gets   int
	sets   int
}

func (c *stubCache) Get(_ context.Context, shiftID string) (*domain.CashUpReport, bool, error) {
	c.gets++
	report, ok := c.stored[shiftID]
	if !ok {
		return nil, false, nil
	}
	return &report, true, nil
}

func (c *stubCache) Set(_ context.Context, shiftID string, report domain.CashUpReport, _ time.Duration) error {
	c.sets++
	c.stored[shiftID] = report
	return nil
}

func TestReportCachesClosedShiftsOnly(t *testing.T) {
	stub := &stubCache{stored: make(map[string]domain.CashUpReport)}
	calc := NewCalculator(stub, time.Minute)
	ctx := context.Background()

	calc.Report(ctx, testShift(domain.ShiftStatusOpen), nil, nil, nil)
	if stub.gets != 0 || stub.sets != 0 {
		t.Fatalf("open shift report must bypass cache, gets=%d sets=%d", stub.gets, stub.sets)
	}

	calc.Report(ctx, testShift(domain.ShiftStatusClosed), nil, nil, nil)
	if stub.sets != 1 {
		t.Fatalf("closed shift report must be cached, sets=%d", stub.sets)
	}

	first := stub.stored["shift-1"]
	second := calc.Report(ctx, testShift(domain.ShiftStatusClosed), nil, nil, nil)
	if second.GeneratedAt != first.GeneratedAt {
		t.Fatalf("second closed report must come from cache")
	}
	if stub.sets != 1 {
		t.Fatalf("cached report must not be re-stored, sets=%d", stub.sets)
	}
}
