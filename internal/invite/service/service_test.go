package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/invites/internal/clock"
	"github.com/smallbiznis/invites/internal/invite/code"
	"github.com/smallbiznis/invites/internal/invite/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Add(ctx context.Context, invite domain.Invite) error {
	return m.Called(ctx, invite).Error(0)
}

func (m *mockRepository) Get(ctx context.Context, code string) (*domain.Invite, error) {
	args := m.Called(ctx, code)
	invite, _ := args.Get(0).(*domain.Invite)
	return invite, args.Error(1)
}

func (m *mockRepository) Delete(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

func (m *mockRepository) DeleteMany(ctx context.Context, codes []string) error {
	return m.Called(ctx, codes).Error(0)
}

func (m *mockRepository) DeleteAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRepository) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.ListResponse)
	return resp, args.Error(1)
}

func (m *mockRepository) Reindex(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) Stats(ctx context.Context) (*domain.IndexStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*domain.IndexStats)
	return stats, args.Error(1)
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, repo domain.Repository) *Service {
	t.Helper()
	gen, err := code.NewGenerator("ulid", 0)
	require.NoError(t, err)
	return New(Params{
		Log:   zap.NewNop(),
		Repo:  repo,
		Codes: gen,
		Clock: clock.NewFakeClock(fixedNow),
	}).(*Service)
}

func strPtr(s string) *string { return &s }

func TestCreateWithProvidedCode(t *testing.T) {
	repo := &mockRepository{}
	repo.On("Add", mock.Anything, domain.Invite{Code: "WELCOME", CreatedAt: fixedNow.UnixMilli()}).Return(nil).Once()

	svc := newTestService(t, repo)
	invite, err := svc.Create(context.Background(), domain.CreateRequest{Code: strPtr("WELCOME")}, domain.CodeOptions{})
	require.NoError(t, err)

	assert.Equal(t, "WELCOME", invite.Code)
	assert.Equal(t, fixedNow.UnixMilli(), invite.CreatedAt)
	assert.Nil(t, invite.RedeemedBy)
	assert.Nil(t, invite.RedeemedAt)
	repo.AssertExpectations(t)
}

func TestCreateGeneratesCode(t *testing.T) {
	repo := &mockRepository{}
	repo.On("Add", mock.Anything, mock.MatchedBy(func(inv domain.Invite) bool {
		_, err := ulid.ParseStrict(inv.Code)
		return err == nil && inv.CreatedAt == fixedNow.UnixMilli()
	})).Return(nil).Once()

	svc := newTestService(t, repo)
	invite, err := svc.Create(context.Background(), domain.CreateRequest{}, domain.CodeOptions{})
	require.NoError(t, err)
	assert.Len(t, invite.Code, 26)
	repo.AssertExpectations(t)
}

func TestCreateGeneratesCodeFromAlphabet(t *testing.T) {
	repo := &mockRepository{}
	repo.On("Add", mock.Anything, mock.Anything).Return(nil).Once()

	svc := newTestService(t, repo)
	invite, err := svc.Create(context.Background(), domain.CreateRequest{}, domain.CodeOptions{Alphabet: "XYZ", Size: 5})
	require.NoError(t, err)
	assert.Len(t, invite.Code, 5)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	repo := &mockRepository{}
	svc := newTestService(t, repo)

	_, err := svc.Create(context.Background(), domain.CreateRequest{Code: strPtr("")}, domain.CodeOptions{})
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = svc.Create(context.Background(), domain.CreateRequest{}, domain.CodeOptions{Size: 999})
	assert.ErrorIs(t, err, domain.ErrInvalidCodeOptions)

	repo.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestCreatePropagatesCommitFailure(t *testing.T) {
	repo := &mockRepository{}
	repo.On("Add", mock.Anything, mock.Anything).Return(domain.ErrCommitFailed).Once()

	svc := newTestService(t, repo)
	_, err := svc.Create(context.Background(), domain.CreateRequest{Code: strPtr("X")}, domain.CodeOptions{})
	assert.ErrorIs(t, err, domain.ErrCommitFailed)
}

func TestGet(t *testing.T) {
	repo := &mockRepository{}
	repo.On("Get", mock.Anything, "A").Return(&domain.Invite{Code: "A", CreatedAt: 1}, nil).Once()
	repo.On("Get", mock.Anything, "missing").Return(nil, nil).Once()
	repo.On("Get", mock.Anything, " ").Return(&domain.Invite{Code: " ", CreatedAt: 2}, nil).Once()

	svc := newTestService(t, repo)

	invite, err := svc.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "A", invite.Code)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrCodeRequired)

	invite, err = svc.Get(context.Background(), " ")
	require.NoError(t, err, "whitespace is a valid code")
	assert.Equal(t, " ", invite.Code)
	repo.AssertExpectations(t)
}

func TestDeleteVariants(t *testing.T) {
	repo := &mockRepository{}
	repo.On("Delete", mock.Anything, "A").Return(nil).Once()
	repo.On("DeleteMany", mock.Anything, []string{"A", "B"}).Return(domain.ErrBulkDeleteFailed).Once()
	repo.On("DeleteAll", mock.Anything).Return(nil).Once()

	svc := newTestService(t, repo)
	ctx := context.Background()

	assert.NoError(t, svc.Delete(ctx, "A"))
	assert.ErrorIs(t, svc.Delete(ctx, ""), domain.ErrCodeRequired)
	assert.ErrorIs(t, svc.DeleteMany(ctx, []string{"A", "B"}), domain.ErrBulkDeleteFailed)
	assert.NoError(t, svc.DeleteAll(ctx))
	repo.AssertExpectations(t)
}

func TestListValidatesBeforeQuerying(t *testing.T) {
	repo := &mockRepository{}
	req := domain.NewListRequest()
	repo.On("List", mock.Anything, req).Return(&domain.ListResponse{Items: []domain.Invite{}}, nil).Once()

	svc := newTestService(t, repo)

	resp, err := svc.List(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Items)

	_, err = svc.List(context.Background(), domain.ListRequest{Limit: 101})
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))
	repo.AssertExpectations(t)
}

func TestReindexAndStats(t *testing.T) {
	repo := &mockRepository{}
	repo.On("Reindex", mock.Anything).Return(4, nil).Once()
	repo.On("Stats", mock.Anything).Return(&domain.IndexStats{Primary: 4, Index: 4}, nil).Once()

	svc := newTestService(t, repo)

	count, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	stats, err := svc.IndexStats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Consistent())
	repo.AssertExpectations(t)
}
