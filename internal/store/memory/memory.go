package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillpoint/internal/domain"
	"tillpoint/internal/money"
	"tillpoint/internal/store"
	"tillpoint/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	customersByID    map[string]domain.Customer
	shiftsByID       map[string]domain.Shift
	activeShiftByTil map[string]string
	transactions     []domain.Transaction
	refunds          []domain.RefundEntry
	withdrawals      []domain.WithdrawalEntry
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables, with hardcoded dev defaults when unset. These
// are never used in production (PostgreSQL is used when DATABASE_URL is
// set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-bread", Name: "White Bread", UnitPrice: money.FromFloat(18.50), Stock: 120, Active: true},
		{ID: "prod-milk", Name: "Full Cream Milk 1L", UnitPrice: money.FromFloat(22.00), Stock: 120, Active: true},
		{ID: "prod-eggs", Name: "Eggs 6 Pack", UnitPrice: money.FromFloat(24.90), Stock: 120, Active: true},
		{ID: "prod-sugar", Name: "Sugar 1kg", UnitPrice: money.FromFloat(29.50), Stock: 120, Active: true},
		{ID: "prod-maize", Name: "Maize Meal 2.5kg", UnitPrice: money.FromFloat(42.00), Stock: 120, Active: true},
		{ID: "prod-oil", Name: "Cooking Oil 750ml", UnitPrice: money.FromFloat(38.90), Stock: 120, Active: true},
		{ID: "prod-soap", Name: "Bath Soap", UnitPrice: money.FromFloat(12.50), Stock: 120, Active: true},
		{ID: "prod-candles", Name: "Candles 6 Pack", UnitPrice: money.FromFloat(19.90), Stock: 120, Active: true},
		{ID: "prod-airtime", Name: "Airtime Voucher", UnitPrice: money.FromFloat(10.00), Stock: 500, Active: true},
		{ID: "prod-cooldrink", Name: "Cold Drink 2L", UnitPrice: money.FromFloat(25.00), Stock: 120, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		products:         productMap,
		customersByID:    make(map[string]domain.Customer),
		shiftsByID:       make(map[string]domain.Shift),
		activeShiftByTil: make(map[string]string),
		transactions:     make([]domain.Transaction, 0, 128),
		refunds:          make([]domain.RefundEntry, 0, 32),
		withdrawals:      make([]domain.WithdrawalEntry, 0, 32),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := p
	return &copyProduct, nil
}

func (s *Store) DecrementStock(_ context.Context, id string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	if p.Stock-qty < 0 {
		p.Stock = 0
	} else {
		p.Stock -= qty
	}
	s.products[id] = p
	return nil
}

func (s *Store) IncrementStock(_ context.Context, id string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	p.Stock += qty
	s.products[id] = p
	return nil
}

func (s *Store) FindOrCreateCustomer(_ context.Context, name string, phone string, idNumber string, termDays int) (*domain.Customer, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return nil, store.ErrMissingCustomerInfo
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.customersByID {
		if strings.EqualFold(c.Name, name) && c.Phone == phone {
			found := c
			return &found, nil
		}
	}

	customer := domain.Customer{
		ID:              xid.New("cust"),
		Name:            name,
		Phone:           phone,
		IDNumber:        strings.TrimSpace(idNumber),
		PaymentTermDays: termDays,
		CreatedAt:       time.Now().UTC(),
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) MarkCustomerPaid(_ context.Context, customerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.customersByID[customerID]
	if !exists {
		return false, store.ErrNotFound
	}
	if !c.OutstandingBalance {
		return false, nil
	}
	c.OutstandingBalance = false
	s.customersByID[customerID] = c
	return true, nil
}

func (s *Store) SetCustomerOutstanding(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.customersByID[customerID]
	if !exists {
		return store.ErrNotFound
	}
	c.OutstandingBalance = true
	s.customersByID[customerID] = c
	return nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.TillID) == "" {
		return nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activeShiftByTil[shift.TillID]; exists {
		return nil, store.ErrShiftAlreadyOpen
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartTime.IsZero() {
		shift.StartTime = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.EndFloat = nil
	shift.EndTime = nil

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByTil[shift.TillID] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShift(_ context.Context, shiftID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyShift := cloneShift(shift)
	return &copyShift, nil
}

func (s *Store) GetActiveShift(_ context.Context, tillID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByTil[tillID]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	copyShift := cloneShift(shift)
	return &copyShift, nil
}

func (s *Store) CloseShift(_ context.Context, tillID string, endFloat money.Money, endTime time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shiftID, exists := s.activeShiftByTil[tillID]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	if endTime.IsZero() {
		endTime = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusClosed
	shift.EndFloat = &endFloat
	shift.EndTime = &endTime

	delete(s.activeShiftByTil, tillID)
	s.shiftsByID[shiftID] = shift
	copyShift := cloneShift(shift)
	return &copyShift, nil
}

func (s *Store) AppendTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ShiftID == "" || len(tx.Lines) == 0 {
		return nil, store.ErrInvalidAmount
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	s.transactions = append(s.transactions, cloneTransaction(tx))
	created := cloneTransaction(tx)
	return &created, nil
}

func (s *Store) AppendRefund(_ context.Context, entry domain.RefundEntry) (*domain.RefundEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ShiftID == "" || entry.Qty < 1 {
		return nil, store.ErrInvalidAmount
	}
	if entry.ID == "" {
		entry.ID = xid.New("refund")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.refunds = append(s.refunds, entry)
	created := entry
	return &created, nil
}

func (s *Store) AppendWithdrawal(_ context.Context, entry domain.WithdrawalEntry) (*domain.WithdrawalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ShiftID == "" || !entry.Amount.IsPositive() {
		return nil, store.ErrInvalidAmount
	}
	if entry.ID == "" {
		entry.ID = xid.New("wd")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.withdrawals = append(s.withdrawals, entry)
	created := entry
	return &created, nil
}

func (s *Store) TransactionsByShift(_ context.Context, shiftID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 32)
	for _, tx := range s.transactions {
		if tx.ShiftID != shiftID {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}
	return result, nil
}

func (s *Store) RefundsByShift(_ context.Context, shiftID string) ([]domain.RefundEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RefundEntry, 0, 16)
	for _, entry := range s.refunds {
		if entry.ShiftID != shiftID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) WithdrawalsByShift(_ context.Context, shiftID string) ([]domain.WithdrawalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.WithdrawalEntry, 0, 16)
	for _, entry := range s.withdrawals {
		if entry.ShiftID != shiftID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrUsernameTaken
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneShift(src domain.Shift) domain.Shift {
	dup := src
	if src.EndFloat != nil {
		endFloat := *src.EndFloat
		dup.EndFloat = &endFloat
	}
	if src.EndTime != nil {
		endTime := *src.EndTime
		dup.EndTime = &endTime
	}
	return dup
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dup := src
	lines := make([]domain.TransactionLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	allocations := make([]domain.PaymentAllocation, len(src.Allocations))
	copy(allocations, src.Allocations)
	dup.Allocations = allocations
	return dup
}
