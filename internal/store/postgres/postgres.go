package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tillpoint/internal/domain"
	"tillpoint/internal/money"
	"tillpoint/internal/store"
	"tillpoint/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit_price, stock, active
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Stock, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, unit_price, stock, active
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.UnitPrice, &product.Stock, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidAmount
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = GREATEST(stock - $2, 0), updated_at = now()
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementStock(ctx context.Context, id string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidAmount
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindOrCreateCustomer(ctx context.Context, name string, phone string, idNumber string, termDays int) (*domain.Customer, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return nil, store.ErrMissingCustomerInfo
	}

	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, COALESCE(id_number, ''), outstanding_balance, payment_term_days, created_at
		FROM customers
		WHERE lower(name) = lower($1) AND phone = $2
		LIMIT 1
	`, name, phone).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Phone,
		&customer.IDNumber,
		&customer.OutstandingBalance,
		&customer.PaymentTermDays,
		&customer.CreatedAt,
	)
	if err == nil {
		customer.CreatedAt = customer.CreatedAt.UTC()
		return &customer, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	customer = domain.Customer{
		ID:              xid.New("cust"),
		Name:            name,
		Phone:           phone,
		IDNumber:        strings.TrimSpace(idNumber),
		PaymentTermDays: termDays,
		CreatedAt:       time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, id_number, outstanding_balance, payment_term_days, created_at)
		VALUES ($1,$2,$3,$4,false,$5,$6)
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.IDNumber), customer.PaymentTermDays, customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, COALESCE(id_number, ''), outstanding_balance, payment_term_days, created_at
		FROM customers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.IDNumber, &c.OutstandingBalance, &c.PaymentTermDays, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) MarkCustomerPaid(ctx context.Context, customerID string) (bool, error) {
	var outstanding bool
	err := s.db.QueryRowContext(ctx, `
		SELECT outstanding_balance FROM customers WHERE id = $1
	`, customerID).Scan(&outstanding)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, err
	}
	if !outstanding {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE customers SET outstanding_balance = false WHERE id = $1
	`, customerID)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SetCustomerOutstanding(ctx context.Context, customerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET outstanding_balance = true WHERE id = $1
	`, customerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.TillID) == "" {
		return nil, store.ErrInvalidAmount
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

	// A partial unique index on (till_id) WHERE status = 'open' enforces
	// one open shift per till.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, till_id, user_id, start_float, start_time, end_float, end_time, status)
		VALUES ($1,$2,$3,$4,$5,NULL,NULL,$6)
	`, shift.ID, shift.TillID, shift.UserID, shift.StartFloat, shift.StartTime, shift.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrShiftAlreadyOpen
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) GetShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	return s.scanShift(s.db.QueryRowContext(ctx, `
		SELECT id, till_id, user_id, start_float, start_time, end_float, end_time, status
		FROM shifts
		WHERE id = $1
	`, shiftID))
}

func (s *Store) GetActiveShift(ctx context.Context, tillID string) (*domain.Shift, error) {
	return s.scanShift(s.db.QueryRowContext(ctx, `
		SELECT id, till_id, user_id, start_float, start_time, end_float, end_time, status
		FROM shifts
		WHERE till_id = $1 AND status = 'open'
		ORDER BY start_time DESC
		LIMIT 1
	`, tillID))
}

func (s *Store) CloseShift(ctx context.Context, tillID string, endFloat money.Money, endTime time.Time) (*domain.Shift, error) {
	if endTime.IsZero() {
		endTime = time.Now().UTC()
	}

	return s.scanShift(s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET status = 'closed', end_float = $2, end_time = $3
		WHERE till_id = $1 AND status = 'open'
		RETURNING id, till_id, user_id, start_float, start_time, end_float, end_time, status
	`, tillID, endFloat, endTime))
}

func (s *Store) scanShift(row *sql.Row) (*domain.Shift, error) {
	var shift domain.Shift
	var endFloat money.Money
	var endFloatSet bool
	var endTimeNull sql.NullTime

	err := row.Scan(
		&shift.ID,
		&shift.TillID,
		&shift.UserID,
		&shift.StartFloat,
		&shift.StartTime,
		&nullMoney{value: &endFloat, set: &endFloatSet},
		&endTimeNull,
		&shift.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	shift.StartTime = shift.StartTime.UTC()
	if endFloatSet {
		shift.EndFloat = &endFloat
	}
	if endTimeNull.Valid {
		at := endTimeNull.Time.UTC()
		shift.EndTime = &at
	}
	return &shift, nil
}

// nullMoney scans a nullable NUMERIC column into a money.Money plus a
// presence flag.
type nullMoney struct {
	value *money.Money
	set   *bool
}

func (n *nullMoney) Scan(src any) error {
	if src == nil {
		*n.set = false
		return nil
	}
	if err := n.value.Scan(src); err != nil {
		return err
	}
	*n.set = true
	return nil
}

func (s *Store) AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ShiftID == "" || len(tx.Lines) == 0 {
		return nil, store.ErrInvalidAmount
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	linesJSON, err := json.Marshal(tx.Lines)
	if err != nil {
		return nil, err
	}
	allocationsJSON, err := json.Marshal(tx.Allocations)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, shift_id, till_id, lines, total, allocations,
			cash_received, change, customer_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, tx.ID, tx.ShiftID, tx.TillID, linesJSON, tx.Total, allocationsJSON,
		tx.CashReceived, tx.Change, nullIfEmpty(tx.CustomerID), tx.CreatedAt)
	if err != nil {
		return nil, err
	}

	saved := tx
	return &saved, nil
}

func (s *Store) AppendRefund(ctx context.Context, entry domain.RefundEntry) (*domain.RefundEntry, error) {
	if entry.ShiftID == "" || entry.Qty < 1 {
		return nil, store.ErrInvalidAmount
	}
	if entry.ID == "" {
		entry.ID = xid.New("refund")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refunds (id, shift_id, product_id, qty, amount, method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.ShiftID, entry.ProductID, entry.Qty, entry.Amount, entry.Method, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	saved := entry
	return &saved, nil
}

func (s *Store) AppendWithdrawal(ctx context.Context, entry domain.WithdrawalEntry) (*domain.WithdrawalEntry, error) {
	if entry.ShiftID == "" || !entry.Amount.IsPositive() {
		return nil, store.ErrInvalidAmount
	}
	if entry.ID == "" {
		entry.ID = xid.New("wd")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawals (id, shift_id, amount, reason, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.ShiftID, entry.Amount, entry.Reason, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	saved := entry
	return &saved, nil
}

func (s *Store) TransactionsByShift(ctx context.Context, shiftID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, till_id, lines, total, allocations,
			cash_received, change, COALESCE(customer_id, ''), created_at
		FROM transactions
		WHERE shift_id = $1
		ORDER BY created_at ASC
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		var tx domain.Transaction
		var linesJSON, allocationsJSON []byte
		err := rows.Scan(
			&tx.ID,
			&tx.ShiftID,
			&tx.TillID,
			&linesJSON,
			&tx.Total,
			&allocationsJSON,
			&tx.CashReceived,
			&tx.Change,
			&tx.CustomerID,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(linesJSON, &tx.Lines); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(allocationsJSON, &tx.Allocations); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (s *Store) RefundsByShift(ctx context.Context, shiftID string) ([]domain.RefundEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, product_id, qty, amount, method, created_at
		FROM refunds
		WHERE shift_id = $1
		ORDER BY created_at ASC
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]domain.RefundEntry, 0, 16)
	for rows.Next() {
		var entry domain.RefundEntry
		if err := rows.Scan(&entry.ID, &entry.ShiftID, &entry.ProductID, &entry.Qty, &entry.Amount, &entry.Method, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		refunds = append(refunds, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refunds, nil
}

func (s *Store) WithdrawalsByShift(ctx context.Context, shiftID string) ([]domain.WithdrawalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, amount, reason, created_at
		FROM withdrawals
		WHERE shift_id = $1
		ORDER BY created_at ASC
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	withdrawals := make([]domain.WithdrawalEntry, 0, 16)
	for rows.Next() {
		var entry domain.WithdrawalEntry
		if err := rows.Scan(&entry.ID, &entry.ShiftID, &entry.Amount, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		withdrawals = append(withdrawals, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return withdrawals, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidAmount
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUsernameTaken
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidAmount
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
