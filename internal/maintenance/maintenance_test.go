package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/storage"
	logx "clairvoyance/pkg/logx"
)

type pruneStore struct {
	storage.Store
	before []time.Time
	n      int64
	err    error
}

func (p *pruneStore) PruneSightings(_ context.Context, before time.Time) (int64, error) {
	p.before = append(p.before, before)
	return p.n, p.err
}

func TestRunOnceUsesRetention(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
	st := &pruneStore{n: 4}
	s := New(Config{Retention: 2 * time.Hour}, st, clock.NewManual(now), logx.Nop())

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, []time.Time{now.Add(-2 * time.Hour)}, st.before)
	assert.EqualValues(t, 1, s.Runs())
	assert.EqualValues(t, 4, s.Pruned())
}

func TestRunOnceErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s := New(Config{}, &pruneStore{err: boom}, nil, logx.Nop())
	_, err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Zero(t, s.Pruned())

	_, err = New(Config{}, nil, nil, logx.Nop()).RunOnce(context.Background())
	require.ErrorIs(t, err, storage.ErrDisabled)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, nil, logx.Nop())
	assert.Equal(t, DefaultSchedule, s.cfg.Schedule)
	assert.Equal(t, DefaultRetention, s.cfg.Retention)
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"descriptor", "@every 10m", false},
		{"five fields", "*/5 * * * *", false},
		{"with seconds", "0 */5 * * * *", false},
		{"invalid", "every now and then", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(Config{Schedule: tt.schedule}, &pruneStore{}, nil, logx.Nop())
			err := s.Start(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, s.Start(context.Background()), "second start is a no-op")

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			require.NoError(t, s.Stop(ctx))
			require.NoError(t, s.Stop(ctx))
		})
	}
}

func TestStartWithoutStoreIsNoop(t *testing.T) {
	t.Parallel()
	s := New(Config{Schedule: "not parsed"}, nil, nil, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
