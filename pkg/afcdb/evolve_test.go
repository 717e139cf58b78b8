package afcdb

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/afc"
)

func theta(v float64) map[string]float64 {
	out := map[string]float64{}
	for _, f := range afc.Features {
		out[f] = v
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestSimilarityFunctions(t *testing.T) {
	t.Run("jaccard", func(t *testing.T) {
		assert.Equal(t, 1.0, Jaccard(nil, []string{" "}))
		assert.Equal(t, 0.0, Jaccard(nil, []string{"a"}))
		assert.Equal(t, 1.0, Jaccard([]string{"A"}, []string{"a"}))
		assert.InDelta(t, 1.0/3, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	})
	t.Run("bool eq", func(t *testing.T) {
		assert.Equal(t, 0.0, BoolEq("", ""))
		assert.Equal(t, 0.0, BoolEq("click", "type"))
		assert.Equal(t, 1.0, BoolEq("click", "click"))
	})
	t.Run("url pattern", func(t *testing.T) {
		assert.Equal(t, 1.0, URLPatternSim("", ""))
		assert.Equal(t, 0.0, URLPatternSim("^https://a/.*", ""))
		assert.Equal(t, 0.5, URLPatternSim("^https://a/", "^https://a/hotels.*"))
		assert.Equal(t, 0.0, URLPatternSim("^https://a/x", "^https://b/x"))
	})
	t.Run("weighted", func(t *testing.T) {
		scores := map[string]float64{afc.FeatureCleanText: 1, afc.FeatureAction: 0}
		w := map[string]float64{afc.FeatureCleanText: 1, afc.FeatureAction: 1, afc.FeatureRole: -1}
		assert.Equal(t, 0.5, Similarity(scores, w))
		assert.Equal(t, 0.0, Similarity(scores, map[string]float64{afc.FeatureCleanText: 0}))
	})
}

func TestFindCandidateControls(t *testing.T) {
	ctx := context.Background()
	dir := writeRun(t, t.TempDir(), "old", "#search-btn", searchSkill(t))
	_, page, err := BuildPageSnapshot(ctx, dir, PageOptions{})
	require.NoError(t, err)

	c := afc.SkillCase{SInvariant: InvariantFromControl(page.Controls[0]), ThetaWeights: afc.DefaultTheta()}
	got := FindCandidateControls(c, page, 0, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "d1", got[0].ControlID)
	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, 1.0, got[0].FeatureScores[afc.FeatureCleanText])
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i].Score, got[i-1].Score)
	}

	assert.Len(t, FindCandidateControls(c, page, 1, 0), 1)
	assert.Len(t, FindCandidateControls(c, page, 0, 0.99), 1)
	assert.Nil(t, FindCandidateControls(c, nil, 3, 0))
}

func TestUpdateSkillCase(t *testing.T) {
	tests := []struct {
		name   string
		exec   afc.ExecutionCase
		want   map[string]float64
		levels *afc.Levels
		grade  *int
	}{
		{
			name: "success",
			exec: afc.ExecutionCase{ExecSuccess: true},
			want: map[string]float64{
				afc.FeatureCleanText: 0.55, afc.FeatureNormLabel: 0.55, afc.FeatureAction: 0.55, afc.FeatureRole: 0.55,
				afc.FeatureURLPattern: 0.5, afc.FeatureLogin: 0.5,
			},
		},
		{
			name: "success with semantic drift",
			exec: afc.ExecutionCase{ExecSuccess: true, LS: intPtr(1), LA: intPtr(0)},
			want: map[string]float64{
				afc.FeatureCleanText: 0.55, afc.FeatureNormLabel: 0.55, afc.FeatureAction: 0.55, afc.FeatureRole: 0.55,
				afc.FeatureURLPattern: 0.525, afc.FeatureLogin: 0.525,
			},
			levels: &afc.Levels{LS: 1, LA: 0},
		},
		{
			name: "failure",
			exec: afc.ExecutionCase{ErrorType: ErrorAction},
			want: theta(0.4),
		},
		{
			name: "failure with low grade",
			exec: afc.ExecutionCase{RebuildGrade: intPtr(-3)},
			want: map[string]float64{
				afc.FeatureCleanText: 0.4, afc.FeatureNormLabel: 0.4, afc.FeatureAction: 0.4, afc.FeatureRole: 0.4,
				afc.FeatureURLPattern: 0.45, afc.FeatureLogin: 0.45,
			},
			grade: intPtr(0),
		},
		{
			name:   "clamped inputs",
			exec:   afc.ExecutionCase{ExecSuccess: true, LS: intPtr(7), LA: intPtr(-1), RebuildGrade: intPtr(9), ThetaDelta: map[string]float64{afc.FeatureCleanText: 2, afc.FeatureRole: -0.2, "bogus": 1}},
			levels: &afc.Levels{LS: 2, LA: 0},
			grade:  intPtr(4),
			want: map[string]float64{
				afc.FeatureCleanText: 1, afc.FeatureNormLabel: 0.55, afc.FeatureAction: 0.55, afc.FeatureRole: 0.35,
				afc.FeatureURLPattern: 0.525, afc.FeatureLogin: 0.525,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := afc.SkillCase{ThetaWeights: theta(0.5)}
			UpdateSkillCase(&c, tt.exec)

			require.Len(t, c.ThetaWeights, len(afc.Features))
			for k, v := range tt.want {
				assert.InDelta(t, v, c.ThetaWeights[k], 1e-9, k)
			}
			assert.Equal(t, tt.levels, c.Levels)
			assert.Equal(t, tt.grade, c.RebuildGrade)
			require.NotNil(t, c.EvolveMeta.LastExec)
			assert.Equal(t, tt.exec.ExecSuccess, c.EvolveMeta.LastExec.Success)
			if tt.exec.ExecSuccess {
				assert.Equal(t, 1, c.RHistory.ExecSuccess)
				assert.Empty(t, c.EvolveMeta.NegativeSamples)
			} else {
				assert.Equal(t, 1, c.RHistory.ExecFail)
				assert.Len(t, c.EvolveMeta.NegativeSamples, 1)
			}
		})
	}

	t.Run("weights stay in range", func(t *testing.T) {
		c := afc.SkillCase{ThetaWeights: theta(0.05)}
		for i := 0; i < 3; i++ {
			UpdateSkillCase(&c, afc.ExecutionCase{})
		}
		for _, v := range c.ThetaWeights {
			assert.GreaterOrEqual(t, v, 0.0)
		}
		for i := 0; i < 40; i++ {
			UpdateSkillCase(&c, afc.ExecutionCase{ExecSuccess: true, LS: intPtr(2), LA: intPtr(2)})
		}
		for _, v := range c.ThetaWeights {
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.Len(t, c.EvolveMeta.NegativeSamples, 3)
	})

	t.Run("levels are cleared without drift levels", func(t *testing.T) {
		c := afc.SkillCase{ThetaWeights: theta(0.5), Levels: &afc.Levels{LS: 2, LA: 1}, RebuildGrade: intPtr(3)}
		UpdateSkillCase(&c, afc.ExecutionCase{ExecSuccess: true, LS: intPtr(1)})
		assert.Nil(t, c.Levels)
		assert.Equal(t, intPtr(3), c.RebuildGrade, "grade is kept when absent")
	})
}

func TestCompressCases(t *testing.T) {
	e := &afc.Entry{SkillCases: []afc.SkillCase{
		{AfcControlID: "a", RHistory: afc.History{ExecSuccess: 0, ExecFail: 2}},
		{AfcControlID: "b", RHistory: afc.History{ExecSuccess: 1, ExecFail: 0}},
		{AfcControlID: "c", RHistory: afc.History{ExecSuccess: 2, ExecFail: 2}},
		{AfcControlID: "d", RHistory: afc.History{ExecSuccess: 3, ExecFail: 0}},
		{AfcControlID: "e"},
	}}
	assert.True(t, CompressCases(e, 3))
	ids := []string{}
	for _, c := range e.SkillCases {
		ids = append(ids, c.AfcControlID)
	}
	// c and b tie on 2*succ-fail; c has more runs
	assert.Equal(t, []string{"d", "c", "b"}, ids)
	assert.False(t, CompressCases(e, 3))
}

func TestIntegrateRun(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	dir := writeRun(t, t.TempDir(), "old", "#search-btn", searchSkill(t))

	res, err := IntegrateRun(ctx, store, dir)
	require.NoError(t, err)
	assert.Equal(t, &IntegrateResult{Entries: 3, Controls: 3, Skills: 1, Cases: 3}, res)

	e, err := store.GetEntry(ctx, "Search.Submit:Clickable_Submit")
	require.NoError(t, err)
	assert.Equal(t, GroupSearch, e.SemanticSignatureGlobal.TaskGroup)
	require.Len(t, e.SkillCases, 1)
	c := e.SkillCases[0]
	assert.Equal(t, [3]string{AbsRunDir(dir), "d1", "s1"}, c.Key())
	assert.Equal(t, []string{"搜索"}, c.SInvariant.CleanText)
	assert.Equal(t, "logged_out", c.SInvariant.Env.LoginState)
	assert.Equal(t, afc.DefaultTheta(), c.ThetaWeights)
	assert.Equal(t, "s1", e.ConcreteSkills[0].SkillID)
	assert.Equal(t, "www.trip.com", e.ConcreteSkills[0].Domain)

	field, err := store.GetEntry(ctx, "UnknownGroup.UnknownRole:Editable_Textfield")
	require.NoError(t, err)
	require.Len(t, field.SkillCases, 1)
	assert.Empty(t, field.SkillCases[0].SkillID)

	again, err := IntegrateRun(ctx, store, dir)
	require.NoError(t, err)
	assert.Equal(t, &IntegrateResult{Entries: 3}, again)
}

func TestIntegrateWithEvolution(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	dir := writeRun(t, t.TempDir(), "old", "#search-btn", searchSkill(t))
	_, err := IntegrateRun(ctx, store, dir)
	require.NoError(t, err)

	const id = "Search.Submit:Clickable_Submit"
	log := BuildExecLog(dir, id, []afc.ExecutionCase{
		{AfcControlID: "d1", SkillID: "s1", ErrorType: ErrorAction},
		{AfcControlID: "d99", SkillID: "s1", ErrorType: ErrorAction},
	}, "search hotels")

	res, err := IntegrateWithEvolution(ctx, store, log)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Created)

	e, err := store.GetEntry(ctx, id)
	require.NoError(t, err)
	require.Len(t, e.SkillCases, 2)
	for _, c := range e.SkillCases {
		assert.Equal(t, 1, c.RHistory.ExecFail)
		assert.InDelta(t, 0.8, c.ThetaWeights[afc.FeatureCleanText], 1e-9)
	}
	assert.Len(t, e.AfcControls, 2)
	assert.Empty(t, e.SkillCases[1].SInvariant.CleanText, "unknown controls carry no invariant")

	t.Run("new abstract skill", func(t *testing.T) {
		log := BuildExecLog(dir, "Auth.Login:Clickable_Login", []afc.ExecutionCase{
			{AfcControlID: "d5", ExecSuccess: true},
		}, "")
		_, err := IntegrateWithEvolution(ctx, store, log)
		require.NoError(t, err)

		e, err := store.GetEntry(ctx, "Auth.Login:Clickable_Login")
		require.NoError(t, err)
		assert.Equal(t, GroupAuth, e.SemanticSignatureGlobal.TaskGroup)
		assert.Equal(t, LabelLogin, e.SemanticSignatureGlobal.NormLabel)
		assert.Equal(t, 1, e.SkillCases[0].RHistory.ExecSuccess)
	})

	t.Run("compresses entries", func(t *testing.T) {
		var trials []afc.ExecutionCase
		for _, ctrl := range []string{"c1", "c2", "c3", "c4"} {
			trials = append(trials, afc.ExecutionCase{AfcControlID: ctrl, ExecSuccess: true})
		}
		res, err := IntegrateWithEvolution(ctx, store, BuildExecLog(dir, id, trials, ""))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Compressed)

		e, err := store.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.Len(t, e.SkillCases, MaxCasesPerEntry)
	})

	_, err = IntegrateWithEvolution(ctx, store, nil)
	assert.Error(t, err)
}

func TestExecLog(t *testing.T) {
	dir := rundir.Dir(t.TempDir())
	log := BuildExecLog(dir, "Search.Submit:Clickable_Submit", []afc.ExecutionCase{
		{AfcControlID: "d1", Timestamp: "2025-02-02T00:00:00Z"},
		{AfcControlID: "d2", RunDir: "/elsewhere"},
	}, "task")
	assert.Equal(t, ExecLogVersion, log.Version)
	assert.Equal(t, AbsRunDir(dir), log.RunDir)
	assert.True(t, strings.HasSuffix(log.CreatedAt, "Z"))
	assert.Equal(t, "2025-02-02T00:00:00Z", log.SkillCases[0].Timestamp)
	assert.Equal(t, log.CreatedAt, log.SkillCases[1].Timestamp)
	assert.Equal(t, "/elsewhere", log.SkillCases[1].RunDir)
	assert.Equal(t, log.AbstractSkillID, log.SkillCases[1].AbstractSkillID)

	path, err := WriteExecLog(dir, log)
	require.NoError(t, err)
	assert.Contains(t, path, string(dir.Path(rundir.AFCDir, rundir.AbstractExecLogsDir)))
	assert.Contains(t, path, "exec_Search_Submit_Clickable_Submit_")

	loaded, err := LoadExecLog(path)
	require.NoError(t, err)
	assert.Equal(t, log, loaded)

	_, err = LoadExecLog(dir.Path("missing.json"))
	assert.Error(t, err)
}
