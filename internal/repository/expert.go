package repository

import (
	"context"
	"database/sql"
	"errors"

	"expertpay/internal/domain"
)

type ExpertRepository struct {
	db *sql.DB
}

func NewExpertRepository(db *sql.DB) *ExpertRepository {
	return &ExpertRepository{db: db}
}

// Policy returns the cancellation-fee policy for an expert. Unknown experts
// default to not charging, so a missing profile row never blocks a
// cancellation.
func (r *ExpertRepository) Policy(ctx context.Context, expertID int64) (*domain.ExpertPolicy, error) {
	query := `SELECT id, charges_cancellation_fee FROM experts WHERE id = $1`

	var p domain.ExpertPolicy
	err := r.db.QueryRowContext(ctx, query, expertID).Scan(&p.ExpertID, &p.ChargesCancellation)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ExpertPolicy{ExpertID: expertID, ChargesCancellation: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
