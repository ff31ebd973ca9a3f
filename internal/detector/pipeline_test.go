package detector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"achievements/internal/detector"
	"achievements/internal/ledger"
	"achievements/internal/storage/memory"
)

func TestCollectorCandidateIntoFreshLedger(t *testing.T) {
	ctx := context.Background()

	envs, err := detector.New(nil).Evaluate(ctx, detector.Facts{
		CustomIntegrationCount: 62,
		PendingUpdateCount:     3,
	}, "", "")
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "You have installed 62 custom integration.", envs[0].Achievement["description"])

	l := ledger.New(memory.NewInMemoryStore(), "achievements.e2e", ledger.WithDelay(time.Hour))
	require.NoError(t, l.Load(ctx))
	for _, env := range envs {
		_, err := l.ReceiveEnvelope(ctx, env)
		require.NoError(t, err)
	}

	entries := l.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "achievements-core.6a6a8a11-f477-4b08-8dad-51b9b1f0d49d", entries[0].Key)
	assert.Equal(t, "Collector", entries[0].Title)

	// The next pass re-emits the same candidate; the ledger keeps one entry.
	_, err = l.ReceiveEnvelope(ctx, envs[0])
	assert.ErrorIs(t, err, ledger.ErrAlreadyGranted)
	assert.Equal(t, 1, l.Len())
}
