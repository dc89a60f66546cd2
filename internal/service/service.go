package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillpoint/internal/cart"
	"tillpoint/internal/domain"
	"tillpoint/internal/money"
	"tillpoint/internal/reconciliation"
	"tillpoint/internal/store"
	"tillpoint/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service owns the live carts, one per till. Carts are working state and
// never persisted; everything committed goes through the repository.
type Service struct {
	repo          store.Repository
	calculator    *reconciliation.Calculator
	defaultTillID string

	cartMu sync.Mutex
	carts  map[string]*cart.Cart
}

func New(repo store.Repository, calculator *reconciliation.Calculator, defaultTillID string) *Service {
	if defaultTillID == "" {
		defaultTillID = "till-1"
	}

	return &Service{
		repo:          repo,
		calculator:    calculator,
		defaultTillID: defaultTillID,
		carts:         make(map[string]*cart.Cart),
	}
}

func (s *Service) cartFor(tillID string) (*cart.Cart, string) {
	if strings.TrimSpace(tillID) == "" {
		tillID = s.defaultTillID
	}

	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	c, exists := s.carts[tillID]
	if !exists {
		c = cart.New()
		s.carts[tillID] = c
	}
	return c, tillID
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetCart(_ context.Context, tillID string) (domain.CartView, error) {
	c, tillID := s.cartFor(tillID)
	return cartView(c, tillID), nil
}

func (s *Service) AddItem(ctx context.Context, req domain.AddItemRequest) (domain.CartView, error) {
	if req.Qty < 1 {
		return domain.CartView{}, store.ErrInvalidAmount
	}
	if req.CustomPrice != nil && req.CustomPrice.IsNegative() {
		return domain.CartView{}, store.ErrInvalidAmount
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.CartView{}, err
	}
	if !product.Active {
		return domain.CartView{}, store.ErrNotFound
	}

	c, tillID := s.cartFor(req.TillID)
	c.Add(*product, req.Qty, req.CustomPrice)
	return cartView(c, tillID), nil
}

func (s *Service) SetQuantity(ctx context.Context, req domain.SetQuantityRequest) (domain.CartView, error) {
	if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
		return domain.CartView{}, err
	}

	c, tillID := s.cartFor(req.TillID)
	c.SetQuantity(req.ProductID, req.Qty, req.Price)
	return cartView(c, tillID), nil
}

func (s *Service) RemoveItem(_ context.Context, req domain.RemoveItemRequest) (domain.CartView, error) {
	c, tillID := s.cartFor(req.TillID)
	c.Remove(req.ProductID, req.Price)
	return cartView(c, tillID), nil
}

func (s *Service) ClearCart(_ context.Context, tillID string) (domain.CartView, error) {
	c, tillID := s.cartFor(tillID)
	c.Clear()
	return cartView(c, tillID), nil
}

// Pay settles the till's current cart. On success the transaction is
// appended to the shift ledger, stock is decremented and the cart is
// cleared. On any validation failure the cart and ledger are untouched.
func (s *Service) Pay(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	c, tillID := s.cartFor(req.TillID)

	shift, err := s.repo.GetActiveShift(ctx, tillID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PaymentResult{}, store.ErrNoActiveShift
		}
		return domain.PaymentResult{}, err
	}

	if c.IsEmpty() {
		return domain.PaymentResult{}, store.ErrInvalidAmount
	}

	total := c.Total()

	var (
		allocations  []domain.PaymentAllocation
		cashReceived = money.Zero
		change       = money.Zero
		customerID   string
	)

	switch req.Method {
	case domain.MethodCash:
		if req.Amount.LessThan(total) {
			return domain.PaymentResult{}, store.ErrInsufficientCash
		}
		cashReceived = req.Amount
		change = req.Amount.Sub(total)
		allocations = []domain.PaymentAllocation{{Method: domain.MethodCash, Amount: total}}

	case domain.MethodCard, domain.MethodShop2Shop:
		if !req.Amount.Equal(total) {
			return domain.PaymentResult{}, store.ErrInvalidAmount
		}
		allocations = []domain.PaymentAllocation{{Method: req.Method, Amount: total}}

	case domain.MethodAccount:
		customer, err := s.accountCustomer(ctx, req.CustomerName, req.CustomerPhone)
		if err != nil {
			return domain.PaymentResult{}, err
		}
		customerID = customer.ID
		allocations = []domain.PaymentAllocation{{
			Method:        domain.MethodAccount,
			Amount:        total,
			CustomerName:  customer.Name,
			CustomerPhone: customer.Phone,
		}}

	case domain.MethodSplit:
		if len(req.Allocations) == 0 {
			return domain.PaymentResult{}, store.ErrSplitAmountMismatch
		}
		// Allocations are cloned so canonical customer details never leak
		// back into the caller's request slice.
		allocs := slices.Clone(req.Allocations)
		amounts := make([]money.Money, 0, len(allocs))
		for _, alloc := range allocs {
			switch alloc.Method {
			case domain.MethodCash, domain.MethodCard, domain.MethodShop2Shop, domain.MethodAccount:
			default:
				return domain.PaymentResult{}, store.ErrInvalidAmount
			}
			if !alloc.Amount.IsPositive() {
				return domain.PaymentResult{}, store.ErrInvalidAmount
			}
			amounts = append(amounts, alloc.Amount)
		}
		if !money.Sum(amounts...).Equal(total) {
			return domain.PaymentResult{}, store.ErrSplitAmountMismatch
		}
		for _, alloc := range allocs {
			if alloc.Method != domain.MethodAccount {
				continue
			}
			if strings.TrimSpace(alloc.CustomerName) == "" || strings.TrimSpace(alloc.CustomerPhone) == "" {
				return domain.PaymentResult{}, store.ErrMissingCustomerInfo
			}
		}
		// Account customers go on the book before the ledger append because
		// the allocation snapshot carries their canonical name and phone. A
		// failed append can leave the outstanding balance behind; the next
		// sale or a MarkPaid settles it.
		for i, alloc := range allocs {
			if alloc.Method != domain.MethodAccount {
				continue
			}
			customer, err := s.accountCustomer(ctx, alloc.CustomerName, alloc.CustomerPhone)
			if err != nil {
				return domain.PaymentResult{}, err
			}
			customerID = customer.ID
			allocs[i].CustomerName = customer.Name
			allocs[i].CustomerPhone = customer.Phone
		}
		allocations = allocs

	default:
		return domain.PaymentResult{}, store.ErrInvalidAmount
	}

	lines, err := s.transactionLines(ctx, c.Lines())
	if err != nil {
		return domain.PaymentResult{}, err
	}

	tx := domain.Transaction{
		ID:           xid.New("tx"),
		ShiftID:      shift.ID,
		TillID:       tillID,
		Lines:        lines,
		Total:        total,
		Allocations:  allocations,
		CashReceived: cashReceived,
		Change:       change,
		CustomerID:   customerID,
		CreatedAt:    time.Now().UTC(),
	}

	saved, err := s.repo.AppendTransaction(ctx, tx)
	if err != nil {
		return domain.PaymentResult{}, err
	}

	for _, line := range saved.Lines {
		if err := s.repo.DecrementStock(ctx, line.ProductID, line.Qty); err != nil {
			log.Printf("[service] WARN: failed to decrement stock product=%s qty=%d: %v", line.ProductID, line.Qty, err)
		}
	}

	c.Clear()
	s.logAudit(ctx, "payment", "transaction", saved.ID, fmt.Sprintf("method=%s,total=%s,change=%s", req.Method, total, change))

	return domain.PaymentResult{
		TransactionID: saved.ID,
		Change:        change,
		CustomerID:    customerID,
		CreatedAt:     saved.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) accountCustomer(ctx context.Context, name string, phone string) (*domain.Customer, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(phone) == "" {
		return nil, store.ErrMissingCustomerInfo
	}

	customer, err := s.repo.FindOrCreateCustomer(ctx, name, phone, "", 30)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetCustomerOutstanding(ctx, customer.ID); err != nil {
		return nil, err
	}
	customer.OutstandingBalance = true
	return customer, nil
}

func (s *Service) transactionLines(ctx context.Context, cartLines []domain.CartLine) ([]domain.TransactionLine, error) {
	lines := make([]domain.TransactionLine, 0, len(cartLines))
	for _, cl := range cartLines {
		product, err := s.repo.GetProduct(ctx, cl.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, domain.TransactionLine{
			ProductID: cl.ProductID,
			Name:      product.Name,
			UnitPrice: cl.UnitPrice,
			Qty:       cl.Qty,
			LineTotal: cl.LineTotal(),
		})
	}
	return lines, nil
}

// Refund records a cash-out for returned goods and restocks the product.
// It is not linked to the original transaction.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundEntry, error) {
	if req.Qty < 1 || req.UnitPrice.IsNegative() {
		return domain.RefundEntry{}, store.ErrInvalidAmount
	}

	shift, err := s.openShift(ctx, req.ShiftID)
	if err != nil {
		return domain.RefundEntry{}, err
	}

	if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
		return domain.RefundEntry{}, err
	}

	method := req.Method
	if method == "" {
		method = domain.MethodCash
	}
	if method != domain.MethodCash && method != domain.MethodShop2Shop {
		return domain.RefundEntry{}, store.ErrInvalidAmount
	}

	entry := domain.RefundEntry{
		ID:        xid.New("refund"),
		ShiftID:   shift.ID,
		ProductID: req.ProductID,
		Qty:       req.Qty,
		Amount:    req.UnitPrice.MulQty(req.Qty),
		Method:    method,
		CreatedAt: time.Now().UTC(),
	}

	saved, err := s.repo.AppendRefund(ctx, entry)
	if err != nil {
		return domain.RefundEntry{}, err
	}

	if err := s.repo.IncrementStock(ctx, req.ProductID, req.Qty); err != nil {
		log.Printf("[service] WARN: failed to restock refunded product=%s qty=%d: %v", req.ProductID, req.Qty, err)
	}

	s.logAudit(ctx, "refund", "refund", saved.ID, fmt.Sprintf("product=%s,qty=%d,amount=%s", req.ProductID, req.Qty, saved.Amount))
	return *saved, nil
}

// Withdraw records cash taken out of the drawer mid-shift, for example a
// banking drop or a supplier paid from the till.
func (s *Service) Withdraw(ctx context.Context, req domain.WithdrawalRequest) (domain.WithdrawalEntry, error) {
	if !req.Amount.IsPositive() {
		return domain.WithdrawalEntry{}, store.ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.WithdrawalEntry{}, store.ErrMissingReason
	}

	shift, err := s.openShift(ctx, req.ShiftID)
	if err != nil {
		return domain.WithdrawalEntry{}, err
	}

	entry := domain.WithdrawalEntry{
		ID:        xid.New("wd"),
		ShiftID:   shift.ID,
		Amount:    req.Amount,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: time.Now().UTC(),
	}

	saved, err := s.repo.AppendWithdrawal(ctx, entry)
	if err != nil {
		return domain.WithdrawalEntry{}, err
	}

	s.logAudit(ctx, "withdrawal", "withdrawal", saved.ID, fmt.Sprintf("amount=%s,reason=%s", saved.Amount, saved.Reason))
	return *saved, nil
}

func (s *Service) openShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	if strings.TrimSpace(shiftID) == "" {
		return nil, store.ErrNoActiveShift
	}
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNoActiveShift
		}
		return nil, err
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNoActiveShift
	}
	return shift, nil
}

func (s *Service) StartShift(ctx context.Context, req domain.ShiftStartRequest) (domain.ShiftResponse, error) {
	if strings.TrimSpace(req.TillID) == "" {
		req.TillID = s.defaultTillID
	}
	if strings.TrimSpace(req.UserID) == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			req.UserID = actor.Username
		}
	}
	if req.StartFloat.IsNegative() {
		return domain.ShiftResponse{}, store.ErrInvalidAmount
	}

	shift := domain.Shift{
		ID:         xid.New("shift"),
		TillID:     req.TillID,
		UserID:     req.UserID,
		StartFloat: req.StartFloat,
		StartTime:  time.Now().UTC(),
		Status:     domain.ShiftStatusOpen,
	}

	saved, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, "shift_start", "shift", saved.ID, fmt.Sprintf("till=%s,float=%s", saved.TillID, saved.StartFloat))
	return domain.ShiftResponse{Shift: *saved}, nil
}

func (s *Service) EndShift(ctx context.Context, req domain.ShiftEndRequest) (domain.ShiftResponse, error) {
	if strings.TrimSpace(req.TillID) == "" {
		req.TillID = s.defaultTillID
	}
	if req.EndFloat.IsNegative() {
		return domain.ShiftResponse{}, store.ErrInvalidAmount
	}

	c, tillID := s.cartFor(req.TillID)
	if !c.IsEmpty() {
		return domain.ShiftResponse{}, store.ErrCartNotEmpty
	}

	if _, err := s.repo.GetActiveShift(ctx, tillID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftResponse{}, store.ErrNoActiveShift
		}
		return domain.ShiftResponse{}, err
	}

	closed, err := s.repo.CloseShift(ctx, tillID, req.EndFloat, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftResponse{}, store.ErrNoActiveShift
		}
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, "shift_end", "shift", closed.ID, fmt.Sprintf("till=%s,end_float=%s", closed.TillID, req.EndFloat))
	return domain.ShiftResponse{Shift: *closed}, nil
}

func (s *Service) GetActiveShift(ctx context.Context, tillID string) (domain.ShiftResponse, error) {
	if strings.TrimSpace(tillID) == "" {
		tillID = s.defaultTillID
	}

	shift, err := s.repo.GetActiveShift(ctx, tillID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

// CashUp builds the reconciliation report for a shift, open or closed.
func (s *Service) CashUp(ctx context.Context, shiftID string) (domain.CashUpReport, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.CashUpReport{}, err
	}

	transactions, err := s.repo.TransactionsByShift(ctx, shift.ID)
	if err != nil {
		return domain.CashUpReport{}, err
	}
	refunds, err := s.repo.RefundsByShift(ctx, shift.ID)
	if err != nil {
		return domain.CashUpReport{}, err
	}
	withdrawals, err := s.repo.WithdrawalsByShift(ctx, shift.ID)
	if err != nil {
		return domain.CashUpReport{}, err
	}

	return s.calculator.Report(ctx, *shift, transactions, refunds, withdrawals), nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) MarkCustomerPaid(ctx context.Context, customerID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	changed, err := s.repo.MarkCustomerPaid(ctx, customerID)
	if err != nil {
		return err
	}
	if changed {
		s.logAudit(ctx, "customer_mark_paid", "customer", customerID, "")
	}
	return nil
}

func (s *Service) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.CashierUser{}, fmt.Errorf("admin role required")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || len(req.Password) < 8 {
		return domain.CashierUser{}, store.ErrInvalidAmount
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, err
	}

	user := domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      "cashier",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.CashierUser{}, err
	}

	s.logAudit(ctx, "cashier_create", "user", username, "")
	return domain.CashierUser{
		Username:  user.Username,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	}, nil
}

func (s *Service) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	cashiers := make([]domain.CashierUser, 0, len(users))
	for _, user := range users {
		cashiers = append(cashiers, domain.CashierUser{
			Username:  user.Username,
			Role:      user.Role,
			Active:    user.Active,
			CreatedAt: user.CreatedAt,
		})
	}
	return cashiers, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func cartView(c *cart.Cart, tillID string) domain.CartView {
	return domain.CartView{
		TillID: tillID,
		Lines:  c.Lines(),
		Total:  c.Total(),
	}
}
