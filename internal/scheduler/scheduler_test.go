package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterAllAcceptsDefaultSpecs(t *testing.T) {
	s := NewScheduler(context.Background(), time.UTC, nil, nil, zap.NewNop())

	err := s.RegisterAll("*/5 9-16 * * 1-5", "30 9 * * 1-5", "5 16 * * 1-5")
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 3)
}

func TestRegisterAllRejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background(), time.UTC, nil, nil, zap.NewNop())

	err := s.RegisterAll("not a cron spec", "30 9 * * 1-5", "5 16 * * 1-5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register sweep job")
}
