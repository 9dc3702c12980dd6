package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"expertpay/internal/domain"
)

// ErrUnchanged is returned by a Transition decide callback to signal that
// the payment should be left exactly as it is (idempotent re-request).
var ErrUnchanged = errors.New("payment unchanged")

// PaymentsFilter narrows report queries over the ledger.
type PaymentsFilter struct {
	Status           *domain.PaymentStatus
	ExpertID         *int64
	CustomerID       *int64
	CreatedStartDate *time.Time
	CreatedEndDate   *time.Time
}

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, intent_id, customer_id, expert_id, amount, currency, status, cancellation_fee, created_at, updated_at`

// Create inserts a new pending ledger row. The intent id is empty until the
// processor authorize call succeeds.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (id, intent_id, customer_id, expert_id, amount, currency, status, cancellation_fee, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $9)
	`
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.IntentID, p.CustomerID, p.ExpertID, p.Amount, p.Currency, p.Status, p.CancellationFee, now,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// SetAuthorized moves a pending payment to authorized and records the
// processor-assigned intent id.
func (r *PaymentRepository) SetAuthorized(ctx context.Context, paymentID, intentID string) error {
	return r.resolvePending(ctx, paymentID, intentID, domain.StatusAuthorized)
}

// SetFailed marks a pending payment whose authorize call was rejected.
func (r *PaymentRepository) SetFailed(ctx context.Context, paymentID string) error {
	return r.resolvePending(ctx, paymentID, "", domain.StatusFailed)
}

func (r *PaymentRepository) resolvePending(ctx context.Context, paymentID, intentID string, to domain.PaymentStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		UPDATE payments
		SET intent_id = COALESCE(NULLIF($2, ''), intent_id), status = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	res, err := tx.ExecContext(ctx, query, paymentID, intentID, to, time.Now().UTC(), domain.StatusPending)
	if err != nil {
		return fmt.Errorf("resolve pending payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	if err := appendTransition(ctx, tx, paymentID, domain.StatusPending, to, "api"); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByIntentID loads a payment by its processor intent id.
func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE intent_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, intentID))
}

// Transition loads the payment row under a row lock, lets decide mutate its
// status (and cancellation fee), and persists the result together with an
// audit row, all in one transaction. The lock makes the status check and the
// write a single atomic unit, so concurrent mutations cannot act on stale
// state. A decide returning ErrUnchanged leaves the row untouched.
func (r *PaymentRepository) Transition(ctx context.Context, intentID, trigger string, decide func(p *domain.Payment) error) (*domain.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE intent_id = $1 FOR UPDATE`
	p, err := r.scanOne(tx.QueryRowContext(ctx, query, intentID))
	if err != nil {
		return nil, err
	}

	from := p.Status
	if err := decide(p); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return p, nil
		}
		return nil, err
	}

	p.UpdatedAt = time.Now().UTC()
	update := `UPDATE payments SET status = $2, cancellation_fee = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, p.ID, p.Status, p.CancellationFee, p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	if from != p.Status {
		if err := appendTransition(ctx, tx, p.ID, from, p.Status, trigger); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return p, nil
}

// ApplyEventStatus unconditionally sets the status implied by a processor
// event (last-write-wins), which keeps webhook replay idempotent. The audit
// row is only appended when the status actually changes.
func (r *PaymentRepository) ApplyEventStatus(ctx context.Context, intentID string, to domain.PaymentStatus, trigger string) (*domain.Payment, error) {
	return r.Transition(ctx, intentID, trigger, func(p *domain.Payment) error {
		p.Status = to
		return nil
	})
}

// List returns ledger rows matching the filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, f PaymentsFilter) ([]domain.Payment, error) {
	query, args := buildPaymentsQuery(`SELECT `+paymentColumns+` FROM payments`, f, nil)
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// HasMoreThan reports whether more than limit rows match the filter.
func (r *PaymentRepository) HasMoreThan(ctx context.Context, limit int64, f PaymentsFilter) (bool, error) {
	query, args := buildPaymentsQuery(`SELECT COUNT(*) > $1 FROM payments`, f, []any{limit})

	var tooMany bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&tooMany); err != nil {
		return false, err
	}
	return tooMany, nil
}

// Transitions returns the append-only status history of a payment, oldest
// first.
func (r *PaymentRepository) Transitions(ctx context.Context, paymentID string) ([]domain.Transition, error) {
	query := `
		SELECT id, payment_id, from_status, to_status, trigger, created_at
		FROM payment_transitions
		WHERE payment_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		var t domain.Transition
		if err := rows.Scan(&t.ID, &t.PaymentID, &t.FromStatus, &t.ToStatus, &t.Trigger, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func buildPaymentsQuery(base string, f PaymentsFilter, args []any) (string, []any) {
	where := []string{"1=1"}
	i := len(args) + 1

	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", i))
		args = append(args, *f.Status)
		i++
	}
	if f.ExpertID != nil {
		where = append(where, fmt.Sprintf("expert_id = $%d", i))
		args = append(args, *f.ExpertID)
		i++
	}
	if f.CustomerID != nil {
		where = append(where, fmt.Sprintf("customer_id = $%d", i))
		args = append(args, *f.CustomerID)
		i++
	}
	if f.CreatedStartDate != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", i))
		args = append(args, *f.CreatedStartDate)
		i++
	}
	if f.CreatedEndDate != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", i))
		args = append(args, *f.CreatedEndDate)
		i++
	}

	return base + " WHERE " + strings.Join(where, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PaymentRepository) scanOne(row *sql.Row) (*domain.Payment, error) {
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	var intentID sql.NullString
	if err := row.Scan(
		&p.ID,
		&intentID,
		&p.CustomerID,
		&p.ExpertID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.CancellationFee,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.IntentID = intentID.String
	return &p, nil
}

func appendTransition(ctx context.Context, tx *sql.Tx, paymentID string, from, to domain.PaymentStatus, trigger string) error {
	query := `
		INSERT INTO payment_transitions (payment_id, from_status, to_status, trigger, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, query, paymentID, from, to, trigger, time.Now().UTC()); err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}
