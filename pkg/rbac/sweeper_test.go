package rbac

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MertBaran/QA-API-sub001/pkg/ids"
)

type expirerFunc func(ctx context.Context) (int64, error)

func (f expirerFunc) DeactivateExpiredRoles(ctx context.Context) (int64, error) { return f(ctx) }

func TestSweeperRunOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ids.UUIDScheme{})
	r := f.role(t, "r")
	expires := f.clock.Now().Add(time.Second)
	_, err := f.users.AssignRoleToUser(ctx, ids.UUIDScheme{}.New(), r.ID, AssignOptions{ExpiresAt: &expires})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	s := NewSweeper(f.users, time.Second)
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSweeperRunOnceError(t *testing.T) {
	s := NewSweeper(expirerFunc(func(ctx context.Context) (int64, error) {
		return 0, errors.New("boom")
	}), 0)
	_, err := s.RunOnce(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestSweeperSchedule(t *testing.T) {
	var runs atomic.Int32
	s := NewSweeper(expirerFunc(func(ctx context.Context) (int64, error) {
		if runs.Add(1) == 1 {
			panic("first run panics")
		}
		return 0, nil
	}), time.Second)

	require.Error(t, s.Start("not a schedule"))
	require.NoError(t, s.Start("@every 1s"))

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond,
		"a panicking run does not stop the scheduler")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
