package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/db"
)

func TestAll_AppliesCleanly(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := db.OpenMigrated(ctx, filepath.Join(t.TempDir(), "afc.db"), All())
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, table := range []string{"abstract_skills", "afc_controls", "concrete_skills", "skill_cases"} {
		var exists bool
		require.NoError(t, sqlDB.Get(&exists, "SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name=?", table))
		assert.True(t, exists, table)
	}

	runner := db.NewMigrationRunner(sqlDB)
	require.NoError(t, runner.Rollback(ctx, All()))
	versions, err := runner.GetAppliedVersions(ctx)
	require.NoError(t, err)
	assert.Len(t, versions, len(All())-1)
}

func TestAll_VersionsAreUnique(t *testing.T) {
	seen := map[int64]bool{}
	for _, m := range All() {
		assert.False(t, seen[m.Version], "duplicate version %d", m.Version)
		seen[m.Version] = true
		assert.NotNil(t, m.Up)
		assert.NotNil(t, m.Down)
	}
}
