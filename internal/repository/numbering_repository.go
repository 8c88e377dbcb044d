package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/skilltrack/competency-api/internal/models"
)

// NumberingRepository reserves sequential human-readable codes. Each module
// owns a single counter row.
type NumberingRepository struct {
	db *sqlx.DB
}

// NewNumberingRepository constructs the repository.
func NewNumberingRepository(db *sqlx.DB) *NumberingRepository {
	return &NumberingRepository{db: db}
}

// Reserve atomically advances the module counter and returns the new value.
// The single conditional update-and-fetch guarantees gapless, collision-free
// codes under concurrent requests without application-side locking.
func (r *NumberingRepository) Reserve(ctx context.Context, module models.NumberingModule) (int, error) {
	const query = `INSERT INTO custom_numbering (module, last_number) VALUES ($1, 1)
        ON CONFLICT (module) DO UPDATE SET last_number = custom_numbering.last_number + 1
        RETURNING last_number`
	var next int
	if err := r.db.GetContext(ctx, &next, query, module); err != nil {
		return 0, fmt.Errorf("reserve %s number: %w", module, err)
	}
	return next, nil
}

// NextCode reserves the next sequence value and formats it as a code.
func (r *NumberingRepository) NextCode(ctx context.Context, module models.NumberingModule) (string, error) {
	n, err := r.Reserve(ctx, module)
	if err != nil {
		return "", err
	}
	return module.FormatCode(n), nil
}
