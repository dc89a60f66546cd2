package domain

import (
	"time"

	"tillpoint/internal/money"
)

type Product struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	UnitPrice money.Money `json:"unit_price"`
	Stock     int         `json:"stock"`
	Active    bool        `json:"active"`
}

type CartLine struct {
	ProductID string      `json:"product_id"`
	UnitPrice money.Money `json:"unit_price"`
	Qty       int         `json:"qty"`
}

func (l CartLine) LineTotal() money.Money {
	return l.UnitPrice.MulQty(l.Qty)
}

const (
	MethodCash      = "cash"
	MethodCard      = "card"
	MethodShop2Shop = "shop2shop"
	MethodAccount   = "account"
	MethodSplit     = "split"
)

type PaymentAllocation struct {
	Method        string      `json:"method"`
	Amount        money.Money `json:"amount"`
	CustomerName  string      `json:"customer_name,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
}

type TransactionLine struct {
	ProductID string      `json:"product_id"`
	Name      string      `json:"name"`
	UnitPrice money.Money `json:"unit_price"`
	Qty       int         `json:"qty"`
	LineTotal money.Money `json:"line_total"`
}

// Transaction is an append-only record of a committed sale. It is never
// mutated after creation.
type Transaction struct {
	ID           string              `json:"id"`
	ShiftID      string              `json:"shift_id"`
	TillID       string              `json:"till_id"`
	Lines        []TransactionLine   `json:"lines"`
	Total        money.Money         `json:"total"`
	Allocations  []PaymentAllocation `json:"allocations"`
	CashReceived money.Money         `json:"cash_received"`
	Change       money.Money         `json:"change"`
	CustomerID   string              `json:"customer_id,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// RefundEntry records a cash-out for returned goods. Amount is a positive
// magnitude; reconciliation subtracts it.
type RefundEntry struct {
	ID        string      `json:"id"`
	ShiftID   string      `json:"shift_id"`
	ProductID string      `json:"product_id"`
	Qty       int         `json:"qty"`
	Amount    money.Money `json:"amount"`
	Method    string      `json:"method"`
	CreatedAt time.Time   `json:"created_at"`
}

type WithdrawalEntry struct {
	ID        string      `json:"id"`
	ShiftID   string      `json:"shift_id"`
	Amount    money.Money `json:"amount"`
	Reason    string      `json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

type Shift struct {
	ID         string       `json:"id"`
	TillID     string       `json:"till_id"`
	UserID     string       `json:"user_id"`
	StartFloat money.Money  `json:"start_float"`
	StartTime  time.Time    `json:"start_time"`
	EndFloat   *money.Money `json:"end_float,omitempty"`
	EndTime    *time.Time   `json:"end_time,omitempty"`
	Status     string       `json:"status"`
}

// Customer is created lazily the first time an account payment references
// it. OutstandingBalance stays true until MarkPaid.
type Customer struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Phone              string    `json:"phone"`
	IDNumber           string    `json:"id_number,omitempty"`
	OutstandingBalance bool      `json:"outstanding_balance"`
	PaymentTermDays    int       `json:"payment_term_days,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type AddItemRequest struct {
	TillID      string       `json:"till_id"`
	ProductID   string       `json:"product_id"`
	Qty         int          `json:"qty"`
	CustomPrice *money.Money `json:"custom_price,omitempty"`
}

type SetQuantityRequest struct {
	TillID    string       `json:"till_id"`
	ProductID string       `json:"product_id"`
	Qty       int          `json:"qty"`
	Price     *money.Money `json:"price,omitempty"`
}

type RemoveItemRequest struct {
	TillID    string       `json:"till_id"`
	ProductID string       `json:"product_id"`
	Price     *money.Money `json:"price,omitempty"`
}

type CartView struct {
	TillID string      `json:"till_id"`
	Lines  []CartLine  `json:"lines"`
	Total  money.Money `json:"total"`
}

type PaymentRequest struct {
	TillID        string              `json:"till_id"`
	Method        string              `json:"method"`
	Amount        money.Money         `json:"amount"`
	CustomerName  string              `json:"customer_name,omitempty"`
	CustomerPhone string              `json:"customer_phone,omitempty"`
	Allocations   []PaymentAllocation `json:"allocations,omitempty"`
}

type PaymentResult struct {
	TransactionID string      `json:"transaction_id"`
	Change        money.Money `json:"change"`
	CustomerID    string      `json:"customer_id,omitempty"`
	CreatedAt     string      `json:"created_at"`
}

type RefundRequest struct {
	ShiftID   string      `json:"shift_id"`
	ProductID string      `json:"product_id"`
	Qty       int         `json:"qty"`
	UnitPrice money.Money `json:"unit_price"`
	Method    string      `json:"method"`
}

type WithdrawalRequest struct {
	ShiftID string      `json:"shift_id"`
	Amount  money.Money `json:"amount"`
	Reason  string      `json:"reason"`
}

type ShiftStartRequest struct {
	TillID     string      `json:"till_id"`
	UserID     string      `json:"user_id"`
	StartFloat money.Money `json:"start_float"`
}

type ShiftEndRequest struct {
	TillID   string      `json:"till_id"`
	EndFloat money.Money `json:"end_float"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type MethodBreakdown struct {
	Method string      `json:"method"`
	Total  money.Money `json:"total"`
}

type RefundBreakdownLine struct {
	ProductID string      `json:"product_id"`
	Qty       int         `json:"qty"`
	Amount    money.Money `json:"amount"`
}

// CashUpReport is the reconciliation projection for one shift. For closed
// shifts CountedCash and Variance are populated from the recorded end float.
type CashUpReport struct {
	ShiftID        string                `json:"shift_id"`
	Status         string                `json:"status"`
	StartFloat     money.Money           `json:"start_float"`
	CashSales      money.Money           `json:"cash_sales"`
	CashRefunds    money.Money           `json:"cash_refunds"`
	Withdrawals    money.Money           `json:"withdrawals"`
	ExpectedCash   money.Money           `json:"expected_cash"`
	CountedCash    *money.Money          `json:"counted_cash,omitempty"`
	Variance       *money.Money          `json:"variance,omitempty"`
	ByMethod       []MethodBreakdown     `json:"by_method"`
	RefundTotal    money.Money           `json:"refund_total"`
	RefundsByItem  []RefundBreakdownLine `json:"refunds_by_item"`
	Transactions   int                   `json:"transactions"`
	GeneratedAt    string                `json:"generated_at"`
	FromClosedData bool                  `json:"from_closed_data"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
