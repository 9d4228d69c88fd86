package badger

import (
	"context"
	"testing"

	"github.com/poiesic/kbassist/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository(t *testing.T) {
	repo := newTestRepositories(t).Checkpoints
	ctx := context.Background()

	missing, err := repo.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{ProcessorType: "reembed", LastID: 42}))

	loaded, err := repo.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, core.ID(42), loaded.LastID)
	assert.False(t, loaded.UpdatedAt.IsZero())

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{ProcessorType: "reembed", LastID: 43}))
	loaded, err = repo.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Equal(t, core.ID(43), loaded.LastID)

	require.NoError(t, repo.ClearCheckpoint(ctx, "reembed"))
	cleared, err := repo.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, cleared)

	assert.NoError(t, repo.ClearCheckpoint(ctx, "never-saved"))
}
