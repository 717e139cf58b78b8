package afcdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/db"
	"github.com/jingkaihe/webskill/pkg/db/migrations"
	"github.com/jingkaihe/webskill/pkg/types/afc"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "afc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen_DefaultPath(t *testing.T) {
	base := t.TempDir()
	t.Setenv(db.BasePathEnv, base)

	store, err := Open(context.Background(), "")
	require.NoError(t, err)
	defer store.Close()

	versions, err := db.NewMigrationRunner(store.db).GetAppliedVersions(context.Background())
	require.NoError(t, err)
	assert.Len(t, versions, len(migrations.All()))
}

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	grade := 2
	entry := &afc.Entry{
		AbstractSkillID:         "Search.Submit:Clickable_Submit",
		SemanticSignatureGlobal: afc.GlobalSemantic{TaskGroup: GroupSearch, TaskRole: RoleSubmit, NormLabel: LabelSubmit, Action: "click"},
		AfcControls: []afc.ControlRef{
			{Domain: "trip.com", RunDir: "/runs/b", ControlID: "d9"},
			{Domain: "trip.com", RunDir: "/runs/a", ControlID: "d1"},
		},
		ConcreteSkills: []afc.SkillRef{{Domain: "trip.com", RunDir: "/runs/a", SkillID: "s1"}},
		SkillCases: []afc.SkillCase{
			{
				RunDir:       "/runs/a",
				Domain:       "trip.com",
				AfcControlID: "d1",
				SkillID:      "s1",
				SInvariant:   afc.Invariant{CleanText: []string{"搜索"}, Role: []string{}, NormLabel: LabelSubmit},
				RHistory:     afc.History{ExecSuccess: 2, ExecFail: 1},
				ThetaWeights: afc.DefaultTheta(),
				Levels:       &afc.Levels{LS: 1, LA: 0},
				RebuildGrade: &grade,
				EvolveMeta:   &afc.EvolveMeta{LastExec: &afc.LastExec{Success: true, Timestamp: "2025-01-01T00:00:00Z"}},
			},
			{
				RunDir:       "/runs/b",
				AfcControlID: "d9",
				SInvariant:   afc.Invariant{CleanText: []string{}, Role: []string{}},
				ThetaWeights: afc.DefaultTheta(),
			},
		},
	}
	require.NoError(t, store.SaveEntry(ctx, entry))

	got, err := store.GetEntry(ctx, entry.AbstractSkillID)
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	t.Run("save replaces children", func(t *testing.T) {
		entry.SkillCases = entry.SkillCases[:1]
		entry.AfcControls = entry.AfcControls[1:]
		require.NoError(t, store.SaveEntry(ctx, entry))

		got, err := store.GetEntry(ctx, entry.AbstractSkillID)
		require.NoError(t, err)
		assert.Len(t, got.SkillCases, 1)
		assert.Equal(t, "d1", got.AfcControls[0].ControlID)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, store.SaveEntry(ctx, &afc.Entry{AbstractSkillID: "Auth.Login:Clickable_Login"}))
		all, err := store.ListEntries(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Auth.Login:Clickable_Login", all[0].AbstractSkillID)
		assert.Empty(t, all[0].SkillCases)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteEntry(ctx, "Auth.Login:Clickable_Login"))
		_, err := store.GetEntry(ctx, "Auth.Login:Clickable_Login")
		assert.True(t, errors.Is(err, ErrEntryNotFound))
		assert.True(t, errors.Is(store.DeleteEntry(ctx, "Auth.Login:Clickable_Login"), ErrEntryNotFound))
	})
}

func TestStore_EnsureEntry(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	sem := afc.GlobalSemantic{TaskGroup: GroupAuth}
	e, err := store.EnsureEntry(ctx, "Auth.Login:Clickable_Login", sem)
	require.NoError(t, err)
	assert.Equal(t, sem, e.SemanticSignatureGlobal)
	assert.Empty(t, e.SkillCases)

	_, err = store.GetEntry(ctx, "Auth.Login:Clickable_Login")
	require.Error(t, err, "ensure does not persist")

	e.AfcControls = append(e.AfcControls, afc.ControlRef{RunDir: "/r", ControlID: "d1"})
	require.NoError(t, store.SaveEntry(ctx, e))

	again, err := store.EnsureEntry(ctx, "Auth.Login:Clickable_Login", afc.GlobalSemantic{})
	require.NoError(t, err)
	assert.Equal(t, sem, again.SemanticSignatureGlobal)
	assert.Len(t, again.AfcControls, 1)

	assert.Error(t, store.SaveEntry(ctx, &afc.Entry{}))
}

func TestJSONField(t *testing.T) {
	var f JSONField[map[string]float64]
	require.NoError(t, f.Scan([]byte(`{"a":0.5}`)))
	assert.Equal(t, 0.5, f.Data["a"])
	require.NoError(t, f.Scan(`{"b":1}`))
	assert.Equal(t, 1.0, f.Data["b"])
	require.NoError(t, f.Scan(nil))
	assert.Error(t, f.Scan(42))

	v, err := JSONField[*afc.Levels]{}.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("null"), v)
}
