package payments

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"venuebook/internal/cache"
	"venuebook/internal/database"
	"venuebook/internal/models"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindReservationByPaymentLink(ctx context.Context, paymentLinkID string) (*models.Reservation, error) {
	args := m.Called(ctx, paymentLinkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockStore) MarkPaid(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
func (m *mockStore) SetPaymentLink(ctx context.Context, id int64, linkID, linkURL string) error {
	return m.Called(ctx, id, linkID, linkURL).Error(0)
}

func newTestReconciler(store *mockStore) *Reconciler {
	logger := zerolog.New(io.Discard)
	return NewReconciler(store, cache.New(nil, 0), "https://pay.example.org/link", &logger)
}

func TestReconcileMarksPaid(t *testing.T) {
	store := new(mockStore)
	r := newTestReconciler(store)
	ctx := context.Background()

	store.On("FindReservationByPaymentLink", ctx, "link_1").
		Return(&models.Reservation{ID: 42, PaymentLinkID: "link_1"}, nil)
	store.On("MarkPaid", ctx, int64(42)).Return(true, nil)

	assert.NoError(t, r.Reconcile(ctx, "link_1"))
	store.AssertExpectations(t)
}

func TestReconcileDuplicateIsNoop(t *testing.T) {
	store := new(mockStore)
	r := newTestReconciler(store)
	ctx := context.Background()

	store.On("FindReservationByPaymentLink", ctx, "link_1").
		Return(&models.Reservation{ID: 42, Paid: true}, nil)
	store.On("MarkPaid", ctx, int64(42)).Return(false, nil)

	// At-least-once webhook delivery: the second confirmation succeeds
	// without changing anything.
	assert.NoError(t, r.Reconcile(ctx, "link_1"))
}

func TestReconcileUnknownLink(t *testing.T) {
	store := new(mockStore)
	r := newTestReconciler(store)
	ctx := context.Background()

	store.On("FindReservationByPaymentLink", ctx, "link_x").Return(nil, database.ErrNotFound)

	err := r.Reconcile(ctx, "link_x")
	assert.ErrorIs(t, err, ErrUnknownPaymentLink)
}

func TestReconcileEmptyLink(t *testing.T) {
	store := new(mockStore)
	r := newTestReconciler(store)

	err := r.Reconcile(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownPaymentLink)
	store.AssertNotCalled(t, "FindReservationByPaymentLink", mock.Anything, mock.Anything)
}

func TestAssignPaymentLink(t *testing.T) {
	store := new(mockStore)
	r := newTestReconciler(store)
	ctx := context.Background()

	store.On("SetPaymentLink", ctx, int64(42), mock.Anything, mock.Anything).Return(nil)

	linkID, linkURL, err := r.AssignPaymentLink(ctx, 42)
	assert.NoError(t, err)
	assert.NotEmpty(t, linkID)
	assert.True(t, strings.HasPrefix(linkURL, "https://pay.example.org/link/"))
	assert.True(t, strings.HasSuffix(linkURL, linkID))
}

func TestParseConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{
			name:    "nested object id",
			payload: `{"event":"payment.succeeded","data":{"object":{"id":"link_1"}}}`,
			want:    "link_1",
		},
		{
			name:    "flat order id",
			payload: `{"order_id":"link_2"}`,
			want:    "link_2",
		},
		{
			name:    "nested wins over flat",
			payload: `{"order_id":"flat","data":{"object":{"id":"nested"}}}`,
			want:    "nested",
		},
		{
			name:    "no id anywhere",
			payload: `{"event":"payment.succeeded"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `<xml/>`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfirmation([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
