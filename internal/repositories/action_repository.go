package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"support-console/internal/models"
)

const defaultActionLimit = 50

// ActionRepository stores the journal of admin decisions.
type ActionRepository interface {
	Record(ctx context.Context, action models.AdminAction) (models.AdminAction, error)
	ListRecent(ctx context.Context, limit int) ([]models.AdminAction, error)
	ListForTarget(ctx context.Context, targetType, targetID string) ([]models.AdminAction, error)
}

// ActionRepo is a sqlx-backed repository.
type ActionRepo struct {
	db *sqlx.DB
}

// NewActionRepo constructs ActionRepo.
func NewActionRepo(db *sqlx.DB) *ActionRepo {
	return &ActionRepo{db: db}
}

// Record inserts one journal entry and returns it with id and timestamp.
func (r *ActionRepo) Record(ctx context.Context, action models.AdminAction) (models.AdminAction, error) {
	err := r.db.QueryRowxContext(ctx, `INSERT INTO admin_actions (admin_id, action, target_type, target_id, detail) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		action.AdminID, action.Action, action.TargetType, action.TargetID, action.Detail).
		Scan(&action.ID, &action.CreatedAt)
	if err != nil {
		return action, fmt.Errorf("record action %s: %w", action.Action, err)
	}
	return action, nil
}

// ListRecent returns the newest entries first.
func (r *ActionRepo) ListRecent(ctx context.Context, limit int) ([]models.AdminAction, error) {
	if limit <= 0 {
		limit = defaultActionLimit
	}
	var actions []models.AdminAction
	err := r.db.SelectContext(ctx, &actions, `SELECT id, admin_id, action, target_type, target_id, detail, created_at
        FROM admin_actions
        ORDER BY created_at DESC, id DESC
        LIMIT $1`, limit)
	return actions, err
}

// ListForTarget returns the entries of one conversation or payout, oldest first.
func (r *ActionRepo) ListForTarget(ctx context.Context, targetType, targetID string) ([]models.AdminAction, error) {
	var actions []models.AdminAction
	err := r.db.SelectContext(ctx, &actions, `SELECT id, admin_id, action, target_type, target_id, detail, created_at
        FROM admin_actions
        WHERE target_type=$1 AND target_id=$2
        ORDER BY created_at ASC, id ASC`, targetType, targetID)
	return actions, err
}

// MemoryActionRepo keeps the journal in process when no database is configured.
type MemoryActionRepo struct {
	mu      sync.Mutex
	actions []models.AdminAction
	nextID  int
	now     func() time.Time
}

// NewMemoryActionRepo constructs MemoryActionRepo.
func NewMemoryActionRepo() *MemoryActionRepo {
	return &MemoryActionRepo{now: time.Now}
}

func (r *MemoryActionRepo) Record(ctx context.Context, action models.AdminAction) (models.AdminAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	action.ID = r.nextID
	action.CreatedAt = r.now().UTC()
	r.actions = append(r.actions, action)
	return action, nil
}

func (r *MemoryActionRepo) ListRecent(ctx context.Context, limit int) ([]models.AdminAction, error) {
	if limit <= 0 {
		limit = defaultActionLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AdminAction, 0, limit)
	for i := len(r.actions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.actions[i])
	}
	return out, nil
}

func (r *MemoryActionRepo) ListForTarget(ctx context.Context, targetType, targetID string) ([]models.AdminAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AdminAction
	for _, a := range r.actions {
		if a.TargetType == targetType && a.TargetID == targetID {
			out = append(out, a)
		}
	}
	return out, nil
}
