package xstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/omeyang/xquota/pkg/quota/xstore"
	"github.com/omeyang/xquota/pkg/quota/xstore/xstoremock"
)

// plainStore 隐藏 Memory 的可选能力，只暴露最小契约
type plainStore struct {
	xstore.Store
}

func TestReserve_Fallback(t *testing.T) {
	ctx := context.Background()
	mem := xstore.NewMemory()
	defer mem.Close()
	s := plainStore{mem}

	for i := int64(1); i <= 2; i++ {
		used, ok, err := xstore.Reserve(ctx, s, "k", 2, time.Hour)
		if err != nil || !ok || used != i {
			t.Fatalf("Reserve #%d = (%d, %v, %v), want (%d, true, nil)", i, used, ok, err, i)
		}
	}

	used, ok, err := xstore.Reserve(ctx, s, "k", 2, time.Hour)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if ok || used != 2 {
		t.Errorf("Reserve over limit = (%d, %v), want (2, false)", used, ok)
	}
}

func TestReserve_UsesReserver(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	mock := struct {
		*xstoremock.MockStore
		*xstoremock.MockReserver
	}{xstoremock.NewMockStore(ctrl), xstoremock.NewMockReserver(ctrl)}

	mock.MockReserver.EXPECT().Reserve(ctx, "k", int64(3), time.Minute).Return(int64(3), false, nil)

	used, ok, err := xstore.Reserve(ctx, mock, "k", 3, time.Minute)
	if err != nil || ok || used != 3 {
		t.Errorf("Reserve = (%d, %v, %v), want (3, false, nil)", used, ok, err)
	}
}

func TestIncrement_ExpireFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	store := xstoremock.NewMockStore(ctrl)
	boom := errors.New("boom")

	gomock.InOrder(
		store.EXPECT().Incr(ctx, "k").Return(int64(5), nil),
		store.EXPECT().Expire(ctx, "k", time.Hour).Return(false, boom),
	)

	v, err := xstore.Increment(ctx, store, "k", time.Hour)
	if v != 5 {
		t.Errorf("Increment value = %d, want 5", v)
	}
	if !errors.Is(err, xstore.ErrExpireNotSet) || !errors.Is(err, boom) {
		t.Errorf("expected ErrExpireNotSet wrapping cause, got %v", err)
	}
}

func TestIncrement_IncrFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	store := xstoremock.NewMockStore(ctrl)
	boom := errors.New("boom")

	store.EXPECT().Incr(ctx, "k").Return(int64(0), boom)

	if _, err := xstore.Increment(ctx, store, "k", time.Hour); !errors.Is(err, boom) {
		t.Errorf("expected incr error, got %v", err)
	}
}

func TestTrackMember_Fallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	store := xstoremock.NewMockStore(ctrl)

	gomock.InOrder(
		store.EXPECT().SAdd(ctx, "s", "m").Return(int64(1), nil),
		store.EXPECT().Expire(ctx, "s", time.Hour).Return(true, nil),
		store.EXPECT().SCard(ctx, "s").Return(int64(4), nil),
	)

	added, card, err := xstore.TrackMember(ctx, store, "s", "m", time.Hour)
	if err != nil || added != 1 || card != 4 {
		t.Errorf("TrackMember = (%d, %d, %v), want (1, 4, nil)", added, card, err)
	}
}
