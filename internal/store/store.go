package store

import (
	"context"
	"errors"
	"time"

	"tillpoint/internal/domain"
	"tillpoint/internal/money"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrShiftAlreadyOpen = errors.New("shift already open")
	ErrUsernameTaken    = errors.New("username already taken")

	// Rejection reasons surfaced to callers. Every failure leaves state
	// untouched; retry is a caller decision.
	ErrNoActiveShift       = errors.New("no active shift")
	ErrInsufficientCash    = errors.New("insufficient cash")
	ErrMissingCustomerInfo = errors.New("missing customer info")
	ErrSplitAmountMismatch = errors.New("split amount mismatch")
	ErrCartNotEmpty        = errors.New("cart not empty")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrMissingReason       = errors.New("missing reason")
)

// ProductRepository is the external catalog collaborator. The core never
// creates or edits products; it only reads them and moves stock.
type ProductRepository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
}

// CustomerRepository backs deferred "account" payments. FindOrCreate
// matches on (name, phone) and creates the customer lazily on first use.
type CustomerRepository interface {
	FindOrCreateCustomer(ctx context.Context, name string, phone string, idNumber string, termDays int) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	MarkCustomerPaid(ctx context.Context, customerID string) (bool, error)
	SetCustomerOutstanding(ctx context.Context, customerID string) error
}

// LedgerRepository persists shifts and their append-only ledger entries.
// Each append is a single atomic insert; entries are never updated or
// deleted once written.
type LedgerRepository interface {
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShift(ctx context.Context, shiftID string) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, tillID string) (*domain.Shift, error)
	CloseShift(ctx context.Context, tillID string, endFloat money.Money, endTime time.Time) (*domain.Shift, error)

	AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	AppendRefund(ctx context.Context, entry domain.RefundEntry) (*domain.RefundEntry, error)
	AppendWithdrawal(ctx context.Context, entry domain.WithdrawalEntry) (*domain.WithdrawalEntry, error)

	TransactionsByShift(ctx context.Context, shiftID string) ([]domain.Transaction, error)
	RefundsByShift(ctx context.Context, shiftID string) ([]domain.RefundEntry, error)
	WithdrawalsByShift(ctx context.Context, shiftID string) ([]domain.WithdrawalEntry, error)
}

// Repository is the full persistence surface: collaborators plus the
// ambient audit/user concerns the backend carries.
type Repository interface {
	ProductRepository
	CustomerRepository
	LedgerRepository

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
