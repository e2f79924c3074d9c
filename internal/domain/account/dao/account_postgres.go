package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-publish/internal/domain/account/entity"
	"github.com/vadim/neo-publish/internal/platform"
)

// AccountFilter contains filters for listing accounts
type AccountFilter struct {
	UserID   string
	Platform *platform.Platform
	Status   *entity.Status
}

// AccountPostgres stores social accounts in PostgreSQL
type AccountPostgres struct {
	pool *pgxpool.Pool
}

// NewAccountPostgres creates a new PostgreSQL account repository
func NewAccountPostgres(pool *pgxpool.Pool) *AccountPostgres {
	return &AccountPostgres{pool: pool}
}

const accountColumns = `
	id, user_id, platform, platform_account_id, platform_username, status, cookie,
	last_verified_at, cookie_expires_at, created_at, updated_at`

// Create inserts an account; ErrAccountExists is returned for a duplicate platform account
func (r *AccountPostgres) Create(ctx context.Context, a *entity.Account) error {
	query := `
		INSERT INTO social_accounts (id, user_id, platform, platform_account_id, platform_username,
		                             status, cookie, last_verified_at, cookie_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, platform, platform_account_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		a.ID,
		a.UserID,
		string(a.Platform),
		a.PlatformAccountID,
		a.PlatformUsername,
		string(a.Status),
		a.Cookie,
		a.LastVerifiedAt,
		a.CookieExpiresAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrAccountExists
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *AccountPostgres) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	query := `SELECT` + accountColumns + ` FROM social_accounts WHERE id = $1`

	a, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	return a, nil
}

// GetActiveByIDs returns the ACTIVE accounts among ids owned by userID
func (r *AccountPostgres) GetActiveByIDs(ctx context.Context, userID string, ids []string) ([]entity.Account, error) {
	query := `SELECT` + accountColumns + `
		FROM social_accounts
		WHERE user_id = $1 AND id = ANY($2) AND status = $3
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, userID, ids, string(entity.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("querying active accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// List retrieves accounts matching the filter, newest first
func (r *AccountPostgres) List(ctx context.Context, filter AccountFilter) ([]entity.Account, error) {
	query := `SELECT` + accountColumns + ` FROM social_accounts WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	argNum := 2

	if filter.Platform != nil {
		query += fmt.Sprintf(" AND platform = $%d", argNum)
		args = append(args, string(*filter.Platform))
		argNum++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(*filter.Status))
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// UpdateCookie replaces the sealed cookie and resets the status
func (r *AccountPostgres) UpdateCookie(ctx context.Context, id, sealed string, status entity.Status) error {
	query := `
		UPDATE social_accounts
		SET cookie = $2, status = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, sealed, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("updating cookie: %w", err)
	}

	return nil
}

// UpdateVerification stores the outcome of a credentials check
func (r *AccountPostgres) UpdateVerification(ctx context.Context, id string, status entity.Status, verifiedAt time.Time, expiresAt *time.Time) error {
	query := `
		UPDATE social_accounts
		SET status = $2, last_verified_at = $3,
		    cookie_expires_at = COALESCE($4, cookie_expires_at), updated_at = $5
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, string(status), verifiedAt, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("updating verification: %w", err)
	}

	return nil
}

// UpdateUsername refreshes the display name discovered by verification
func (r *AccountPostgres) UpdateUsername(ctx context.Context, id, username string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE social_accounts SET platform_username = $2, updated_at = $3 WHERE id = $1",
		id, username, time.Now())
	if err != nil {
		return fmt.Errorf("updating username: %w", err)
	}
	return nil
}

// HasActiveTasks reports whether a pending or running task publishes through the account
func (r *AccountPostgres) HasActiveTasks(ctx context.Context, id string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM task_jobs j
			JOIN publish_tasks t ON t.id = j.task_id
			WHERE j.account_id = $1 AND t.status IN ('PENDING', 'PROCESSING')
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking active tasks: %w", err)
	}

	return exists, nil
}

// Delete removes an account
func (r *AccountPostgres) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM social_accounts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

func collectAccounts(rows pgx.Rows) ([]entity.Account, error) {
	var accounts []entity.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}
	return accounts, nil
}

func scanAccount(row pgx.Row) (*entity.Account, error) {
	var a entity.Account
	var p, status string

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&p,
		&a.PlatformAccountID,
		&a.PlatformUsername,
		&status,
		&a.Cookie,
		&a.LastVerifiedAt,
		&a.CookieExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Platform = platform.Platform(p)
	a.Status = entity.Status(status)
	return &a, nil
}
