package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/neo-publish/internal/domain/account/dao"
	"github.com/vadim/neo-publish/internal/domain/account/entity"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

// cookies are assumed valid for this long until a verification says otherwise
const defaultCookieLifetime = 30 * 24 * time.Hour

// AccountRepository defines the data access the policy needs
type AccountRepository interface {
	Create(ctx context.Context, a *entity.Account) error
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	GetActiveByIDs(ctx context.Context, userID string, ids []string) ([]entity.Account, error)
	List(ctx context.Context, filter dao.AccountFilter) ([]entity.Account, error)
	UpdateCookie(ctx context.Context, id, sealed string, status entity.Status) error
	UpdateVerification(ctx context.Context, id string, status entity.Status, verifiedAt time.Time, expiresAt *time.Time) error
	UpdateUsername(ctx context.Context, id, username string) error
	HasActiveTasks(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// VerifyQueue submits credential checks
type VerifyQueue interface {
	AddVerifyJob(ctx context.Context, data queue.VerifyJobData) (*queue.JobHandle, error)
}

// Sealer encrypts cookies at rest
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Policy orchestrates social account use-cases
type Policy struct {
	accounts AccountRepository
	queue    VerifyQueue
	sealer   Sealer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new account policy
func New(accounts AccountRepository, q VerifyQueue, sealer Sealer, logger *slog.Logger) *Policy {
	return &Policy{
		accounts: accounts,
		queue:    q,
		sealer:   sealer,
		logger:   logger,
		now:      time.Now,
	}
}

// AddAccountInput represents input for linking an account
type AddAccountInput struct {
	UserID            string
	Platform          platform.Platform
	PlatformAccountID string
	PlatformUsername  string
	Cookie            string
}

// AddAccountOutput represents output from linking an account
type AddAccountOutput struct {
	Account *entity.Account
	Job     *queue.JobHandle
}

// AddAccount stores the account with a sealed cookie and queues its verification.
// The account is kept even when the verification cannot be queued.
func (p *Policy) AddAccount(ctx context.Context, in AddAccountInput) (*AddAccountOutput, error) {
	if strings.TrimSpace(in.Cookie) == "" {
		return nil, entity.ErrMissingCredential
	}

	sealed, err := p.sealer.Seal(in.Cookie)
	if err != nil {
		return nil, fmt.Errorf("sealing cookie: %w", err)
	}

	now := p.now()
	expires := now.Add(defaultCookieLifetime)
	username := in.PlatformUsername
	if username == "" {
		username = in.PlatformAccountID
	}

	acc := &entity.Account{
		ID:                uuid.New().String(),
		UserID:            in.UserID,
		Platform:          in.Platform,
		PlatformAccountID: in.PlatformAccountID,
		PlatformUsername:  username,
		Status:            entity.StatusPendingVerification,
		Cookie:            sealed,
		CookieExpiresAt:   &expires,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := p.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}

	job, err := p.enqueueVerify(ctx, acc)
	if err != nil {
		return &AddAccountOutput{Account: acc}, err
	}

	return &AddAccountOutput{Account: acc, Job: job}, nil
}

// GetAccount returns an account owned by userID
func (p *Policy) GetAccount(ctx context.Context, userID, id string) (*entity.Account, error) {
	acc, err := p.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.UserID != userID {
		return nil, entity.ErrAccountNotFound
	}
	return acc, nil
}

// ListAccountsInput represents input for listing accounts
type ListAccountsInput struct {
	UserID   string
	Platform *platform.Platform
	Status   *entity.Status
}

// ListAccounts returns the user's accounts, newest first
func (p *Policy) ListAccounts(ctx context.Context, in ListAccountsInput) ([]entity.Account, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, entity.ErrInvalidStatus
	}

	accounts, err := p.accounts.List(ctx, dao.AccountFilter{
		UserID:   in.UserID,
		Platform: in.Platform,
		Status:   in.Status,
	})
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []entity.Account{}
	}
	return accounts, nil
}

// UpdateCookie replaces the stored cookie and queues a fresh verification
func (p *Policy) UpdateCookie(ctx context.Context, userID, id, cookie string) (*AddAccountOutput, error) {
	if strings.TrimSpace(cookie) == "" {
		return nil, entity.ErrMissingCredential
	}

	acc, err := p.GetAccount(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	sealed, err := p.sealer.Seal(cookie)
	if err != nil {
		return nil, fmt.Errorf("sealing cookie: %w", err)
	}

	if err := p.accounts.UpdateCookie(ctx, id, sealed, entity.StatusPendingVerification); err != nil {
		return nil, err
	}
	acc.Cookie = sealed
	acc.Status = entity.StatusPendingVerification

	job, err := p.enqueueVerify(ctx, acc)
	if err != nil {
		return &AddAccountOutput{Account: acc}, err
	}
	return &AddAccountOutput{Account: acc, Job: job}, nil
}

// RequestVerification queues a credentials check for an existing account
func (p *Policy) RequestVerification(ctx context.Context, userID, id string) (*queue.JobHandle, error) {
	acc, err := p.GetAccount(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return p.enqueueVerify(ctx, acc)
}

// DeleteAccount removes an account that no running task depends on
func (p *Policy) DeleteAccount(ctx context.Context, userID, id string) error {
	if _, err := p.GetAccount(ctx, userID, id); err != nil {
		return err
	}

	busy, err := p.accounts.HasActiveTasks(ctx, id)
	if err != nil {
		return err
	}
	if busy {
		return entity.ErrAccountInUse
	}

	return p.accounts.Delete(ctx, id)
}

// GetActiveByIDs returns the ACTIVE accounts among ids owned by userID
func (p *Policy) GetActiveByIDs(ctx context.Context, userID string, ids []string) ([]entity.Account, error) {
	return p.accounts.GetActiveByIDs(ctx, userID, ids)
}

// Credentials returns the account together with its opened cookie
func (p *Policy) Credentials(ctx context.Context, id string) (*entity.Account, string, error) {
	acc, err := p.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if acc == nil {
		return nil, "", entity.ErrAccountNotFound
	}

	cookie, err := p.sealer.Open(acc.Cookie)
	if err != nil {
		return nil, "", fmt.Errorf("opening cookie of account %s: %w", id, err)
	}
	return acc, cookie, nil
}

// ApplyVerification stores the outcome of a credentials check
func (p *Policy) ApplyVerification(ctx context.Context, id string, v *platform.Verification) (entity.Status, error) {
	now := p.now()

	status := entity.StatusCookieExpired
	expires := now
	if v.Valid {
		status = entity.StatusActive
		expires = v.ExpiresAt
	}

	if err := p.accounts.UpdateVerification(ctx, id, status, now, &expires); err != nil {
		return "", err
	}

	if v.Valid && v.AccountInfo != nil && v.AccountInfo.Username != "" {
		if err := p.accounts.UpdateUsername(ctx, id, v.AccountInfo.Username); err != nil {
			p.logger.Warn("failed to refresh account username", "account_id", id, "error", err)
		}
	}

	return status, nil
}

// MarkVerificationFailed flags an account whose check could not complete
func (p *Policy) MarkVerificationFailed(ctx context.Context, id string) error {
	return p.accounts.UpdateVerification(ctx, id, entity.StatusVerificationFailed, p.now(), nil)
}

func (p *Policy) enqueueVerify(ctx context.Context, acc *entity.Account) (*queue.JobHandle, error) {
	job, err := p.queue.AddVerifyJob(ctx, queue.VerifyJobData{
		AccountID: acc.ID,
		Platform:  acc.Platform,
		UserID:    acc.UserID,
	})
	if err != nil {
		p.logger.Error("failed to queue account verification", "account_id", acc.ID, "error", err)
		return nil, err
	}
	return job, nil
}
