package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/neo-publish/internal/domain/account/dao"
	"github.com/vadim/neo-publish/internal/domain/account/entity"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
	"github.com/vadim/neo-publish/internal/seal"
)

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*entity.Account
	busy     map[string]bool
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: map[string]*entity.Account{}, busy: map[string]bool{}}
}

func (m *memAccounts) Create(_ context.Context, a *entity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.accounts {
		if ex.UserID == a.UserID && ex.Platform == a.Platform && ex.PlatformAccountID == a.PlatformAccountID {
			return entity.ErrAccountExists
		}
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) GetActiveByIDs(_ context.Context, userID string, ids []string) ([]entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Account
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok && a.UserID == userID && a.IsActive() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAccounts) List(_ context.Context, f dao.AccountFilter) ([]entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Account
	for _, a := range m.accounts {
		if a.UserID != f.UserID {
			continue
		}
		if f.Platform != nil && a.Platform != *f.Platform {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memAccounts) UpdateCookie(_ context.Context, id, sealed string, status entity.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id].Cookie = sealed
	m.accounts[id].Status = status
	return nil
}

func (m *memAccounts) UpdateVerification(_ context.Context, id string, status entity.Status, at time.Time, expires *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.Status = status
	a.LastVerifiedAt = &at
	if expires != nil {
		a.CookieExpiresAt = expires
	}
	return nil
}

func (m *memAccounts) UpdateUsername(_ context.Context, id, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id].PlatformUsername = username
	return nil
}

func (m *memAccounts) HasActiveTasks(_ context.Context, id string) (bool, error) {
	return m.busy[id], nil
}

func (m *memAccounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

type fakeVerifyQueue struct {
	jobs []queue.VerifyJobData
	err  error
}

func (f *fakeVerifyQueue) AddVerifyJob(_ context.Context, d queue.VerifyJobData) (*queue.JobHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.jobs = append(f.jobs, d)
	return &queue.JobHandle{ID: queue.VerifyJobID(d.AccountID), Queue: queue.Verify, State: queue.JobWaiting}, nil
}

func newTestPolicy(t *testing.T) (*Policy, *memAccounts, *fakeVerifyQueue) {
	t.Helper()
	box, err := seal.NewBox("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)

	repo := newMemAccounts()
	q := &fakeVerifyQueue{}
	p := New(repo, q, box, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return p, repo, q
}

func TestAddAccount(t *testing.T) {
	ctx := context.Background()
	p, repo, q := newTestPolicy(t)

	out, err := p.AddAccount(ctx, AddAccountInput{
		UserID:            "user-1",
		Platform:          platform.Douyin,
		PlatformAccountID: "dy-42",
		Cookie:            "sessionid=secret",
	})
	require.NoError(t, err)

	assert.Equal(t, entity.StatusPendingVerification, out.Account.Status)
	assert.Equal(t, "dy-42", out.Account.PlatformUsername)
	require.NotNil(t, out.Job)
	assert.Equal(t, "verify:"+out.Account.ID, out.Job.ID)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, platform.Douyin, q.jobs[0].Platform)

	stored := repo.accounts[out.Account.ID]
	assert.NotEqual(t, "sessionid=secret", stored.Cookie)

	_, cookie, err := p.Credentials(ctx, out.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "sessionid=secret", cookie)

	_, err = p.AddAccount(ctx, AddAccountInput{
		UserID: "user-1", Platform: platform.Douyin, PlatformAccountID: "dy-42", Cookie: "x",
	})
	assert.ErrorIs(t, err, entity.ErrAccountExists)

	_, err = p.AddAccount(ctx, AddAccountInput{UserID: "user-1", Platform: platform.Weibo, PlatformAccountID: "w"})
	assert.ErrorIs(t, err, entity.ErrMissingCredential)
}

func TestAddAccountKeepsAccountWhenQueueIsDown(t *testing.T) {
	p, repo, q := newTestPolicy(t)
	q.err = queue.ErrBrokerUnavailable

	out, err := p.AddAccount(context.Background(), AddAccountInput{
		UserID: "u", Platform: platform.Weibo, PlatformAccountID: "w1", Cookie: "c",
	})
	assert.ErrorIs(t, err, queue.ErrBrokerUnavailable)
	require.NotNil(t, out)
	assert.Contains(t, repo.accounts, out.Account.ID)
}

func TestApplyVerification(t *testing.T) {
	ctx := context.Background()
	p, repo, _ := newTestPolicy(t)

	out, err := p.AddAccount(ctx, AddAccountInput{UserID: "u", Platform: platform.TikTok, PlatformAccountID: "t", Cookie: "c"})
	require.NoError(t, err)
	id := out.Account.ID

	expires := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	status, err := p.ApplyVerification(ctx, id, &platform.Verification{
		Valid:       true,
		ExpiresAt:   expires,
		AccountInfo: &platform.AccountInfo{Username: "creator"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusActive, status)
	assert.Equal(t, expires, *repo.accounts[id].CookieExpiresAt)
	assert.Equal(t, "creator", repo.accounts[id].PlatformUsername)

	status, err = p.ApplyVerification(ctx, id, &platform.Verification{Valid: false})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCookieExpired, status)

	require.NoError(t, p.MarkVerificationFailed(ctx, id))
	assert.Equal(t, entity.StatusVerificationFailed, repo.accounts[id].Status)
}

func TestGetAccountChecksOwnership(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPolicy(t)

	out, err := p.AddAccount(ctx, AddAccountInput{UserID: "owner", Platform: platform.Weibo, PlatformAccountID: "w", Cookie: "c"})
	require.NoError(t, err)

	_, err = p.GetAccount(ctx, "intruder", out.Account.ID)
	assert.ErrorIs(t, err, entity.ErrAccountNotFound)

	_, err = p.RequestVerification(ctx, "intruder", out.Account.ID)
	assert.ErrorIs(t, err, entity.ErrAccountNotFound)

	acc, err := p.GetAccount(ctx, "owner", out.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Account.ID, acc.ID)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	p, repo, _ := newTestPolicy(t)

	out, err := p.AddAccount(ctx, AddAccountInput{UserID: "u", Platform: platform.Bilibili, PlatformAccountID: "b", Cookie: "c"})
	require.NoError(t, err)
	id := out.Account.ID

	repo.busy[id] = true
	assert.ErrorIs(t, p.DeleteAccount(ctx, "u", id), entity.ErrAccountInUse)

	repo.busy[id] = false
	require.NoError(t, p.DeleteAccount(ctx, "u", id))
	assert.NotContains(t, repo.accounts, id)
}

func TestListAccounts(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPolicy(t)

	accounts, err := p.ListAccounts(ctx, ListAccountsInput{UserID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, accounts)
	assert.Empty(t, accounts)

	bad := entity.Status("DELETED")
	_, err = p.ListAccounts(ctx, ListAccountsInput{UserID: "u", Status: &bad})
	assert.True(t, errors.Is(err, entity.ErrInvalidStatus))
}
