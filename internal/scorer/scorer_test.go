package scorer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-screening-go/internal/types"
)

func intPtr(v int) *int {
	return &v
}

func TestValidateProfile(t *testing.T) {
	tests := []struct {
		name      string
		candidate *types.CandidateProfile
		wantErr   error
	}{
		{
			name:      "nil画像",
			candidate: nil,
			wantErr:   ErrNilProfile,
		},
		{
			name:      "缺少ID",
			candidate: &types.CandidateProfile{Skills: []string{"go"}},
			wantErr:   ErrMissingCandidateID,
		},
		{
			name:      "缺少技能字段",
			candidate: &types.CandidateProfile{ID: "c1", Skills: nil},
			wantErr:   ErrMissingSkillsField,
		},
		{
			name:      "负数经验年限",
			candidate: &types.CandidateProfile{ID: "c1", Skills: []string{}, YearsExperience: -1},
			wantErr:   ErrNegativeExperience,
		},
		{
			name:      "非法学历",
			candidate: &types.CandidateProfile{ID: "c1", Skills: []string{}, EducationLevel: "diploma"},
			wantErr:   ErrInvalidEducation,
		},
		{
			name:      "空技能列表合法",
			candidate: &types.CandidateProfile{ID: "c1", Skills: []string{}},
			wantErr:   nil,
		},
		{
			name: "完整画像",
			candidate: &types.CandidateProfile{
				ID: "c1", Name: "张三", Skills: []string{"go"},
				YearsExperience: 3, EducationLevel: types.EducationBachelor,
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProfile(tt.candidate)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSkillScorer(t *testing.T) {
	s := NewSkillScorer()

	tests := []struct {
		name      string
		job       *types.JobRequirement
		candidate *types.CandidateProfile
		want      float64
	}{
		{
			name:      "必备技能全命中且无加分技能要求",
			job:       &types.JobRequirement{RequiredSkills: []string{"python", "sql"}},
			candidate: &types.CandidateProfile{ID: "c1", Skills: []string{"python", "sql", "aws"}},
			want:      100,
		},
		{
			name:      "必备技能命中一半",
			job:       &types.JobRequirement{RequiredSkills: []string{"python", "sql"}},
			candidate: &types.CandidateProfile{ID: "c1", Skills: []string{"python"}},
			// 0.8*0.5 + 0.2*1 = 0.6
			want: 60,
		},
		{
			name: "加分技能部分命中",
			job: &types.JobRequirement{
				RequiredSkills:  []string{"go"},
				PreferredSkills: []string{"kubernetes", "terraform"},
			},
			candidate: &types.CandidateProfile{ID: "c1", Skills: []string{"go", "kubernetes"}},
			// 0.8*1 + 0.2*0.5 = 0.9
			want: 90,
		},
		{
			name:      "技能匹配大小写不敏感",
			job:       &types.JobRequirement{RequiredSkills: []string{"python"}},
			candidate: &types.CandidateProfile{ID: "c1", Skills: []string{"Python"}},
			want:      100,
		},
		{
			name:      "完全不命中",
			job:       &types.JobRequirement{RequiredSkills: []string{"rust"}},
			candidate: &types.CandidateProfile{ID: "c1", Skills: []string{"python"}},
			want:      20, // 0.8*0 + 0.2*1（无加分技能要求 ⇒ 比率1）
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.job, tt.candidate)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestExperienceScorer(t *testing.T) {
	s := NewExperienceScorer()

	tests := []struct {
		name        string
		job         *types.JobRequirement
		years       int
		wantScore   float64
		wantMatches bool
	}{
		{
			name:        "在区间内",
			job:         &types.JobRequirement{Experience: types.ExperienceRange{Min: 2, Max: 5}},
			years:       3,
			wantScore:   100,
			wantMatches: true,
		},
		{
			name:        "超过上限不惩罚",
			job:         &types.JobRequirement{Experience: types.ExperienceRange{Min: 2, Max: 5}},
			years:       10,
			wantScore:   100,
			wantMatches: true,
		},
		{
			name:        "低于下限按比例",
			job:         &types.JobRequirement{Experience: types.ExperienceRange{Min: 2, Max: 5}},
			years:       1,
			wantScore:   50,
			wantMatches: false,
		},
		{
			name:        "零年经验",
			job:         &types.JobRequirement{Experience: types.ExperienceRange{Min: 4, Max: 8}},
			years:       0,
			wantScore:   0,
			wantMatches: false,
		},
		{
			name:        "无下限要求",
			job:         &types.JobRequirement{Experience: types.ExperienceRange{Min: 0, Max: 3}},
			years:       0,
			wantScore:   100,
			wantMatches: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := &types.CandidateProfile{ID: "c1", Skills: []string{}, YearsExperience: tt.years}
			assert.InDelta(t, tt.wantScore, s.Score(tt.job, candidate), 1e-9)
			assert.Equal(t, tt.wantMatches, s.Matches(tt.job, candidate))
		})
	}
}

func TestEducationScorer(t *testing.T) {
	s := NewEducationScorer()

	tests := []struct {
		name      string
		jobLevel  types.EducationLevel
		candLevel types.EducationLevel
		want      float64
	}{
		{"无学历要求", "", types.EducationNone, 100},
		{"达到要求", types.EducationBachelor, types.EducationBachelor, 100},
		{"超过要求", types.EducationBachelor, types.EducationPhD, 100},
		{"低于要求", types.EducationMaster, types.EducationBachelor, 0},
		{"大小写不敏感", types.EducationBachelor, "Bachelor", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &types.JobRequirement{EducationLevel: tt.jobLevel}
			candidate := &types.CandidateProfile{ID: "c1", Skills: []string{}, EducationLevel: tt.candLevel}
			assert.InDelta(t, tt.want, s.Score(job, candidate), 1e-9)
			assert.Equal(t, tt.want == 100, s.Matches(job, candidate))
		})
	}
}

func TestLocationScorerBonus(t *testing.T) {
	s := NewLocationScorer(5)

	tests := []struct {
		name         string
		jobLocation  string
		candLocation string
		want         int
	}{
		{"地点一致", "Shanghai", "Shanghai", 5},
		{"大小写与空白不敏感", "shanghai", "  Shanghai ", 5},
		{"地点不一致", "Shanghai", "Beijing", 0},
		{"岗位无地点要求", "", "Beijing", 0},
		{"候选人未填地点", "Shanghai", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &types.JobRequirement{Location: tt.jobLocation}
			candidate := &types.CandidateProfile{ID: "c1", Skills: []string{}, Location: tt.candLocation}
			assert.Equal(t, tt.want, s.Bonus(job, candidate))
		})
	}

	// 非法上限回退到默认值5
	fallback := NewLocationScorer(0)
	job := &types.JobRequirement{Location: "X"}
	candidate := &types.CandidateProfile{ID: "c1", Skills: []string{}, Location: "X"}
	assert.Equal(t, 5, fallback.Bonus(job, candidate))
}

func TestWeightedScorerFullMatch(t *testing.T) {
	w := NewWeightedScorer()

	job := &types.JobRequirement{
		RequiredSkills: []string{"python", "sql"},
		Experience:     types.ExperienceRange{Min: 2, Max: 5},
	}
	candidate := &types.CandidateProfile{
		ID:              "c1",
		Name:            "Alice",
		Skills:          []string{"python", "sql", "aws"},
		YearsExperience: 3,
	}

	breakdown, err := w.ScoreCandidate(context.Background(), job, candidate)
	require.NoError(t, err)
	assert.Equal(t, 100, breakdown.MatchScore)
	assert.Equal(t, 100, breakdown.SkillsMatch)
	assert.True(t, breakdown.ExperienceMatch)
	assert.True(t, breakdown.EducationMatch)
}

func TestWeightedScorerPartialMatch(t *testing.T) {
	w := NewWeightedScorer()

	job := &types.JobRequirement{
		RequiredSkills: []string{"python", "sql"},
		Experience:     types.ExperienceRange{Min: 2, Max: 5},
	}
	candidate := &types.CandidateProfile{
		ID:              "c2",
		Name:            "Bob",
		Skills:          []string{"python"},
		YearsExperience: 1,
	}

	// skill = 0.8*0.5 + 0.2*1 = 60; experience = 50; education = 100
	// round(0.6*60 + 0.25*50 + 0.15*100) = round(63.5) = 64
	breakdown, err := w.ScoreCandidate(context.Background(), job, candidate)
	require.NoError(t, err)
	assert.Equal(t, 64, breakdown.MatchScore)
	assert.Equal(t, 60, breakdown.SkillsMatch)
	assert.False(t, breakdown.ExperienceMatch)
	assert.True(t, breakdown.EducationMatch)
}

func TestWeightedScorerLocationBonusClamped(t *testing.T) {
	w := NewWeightedScorer()

	job := &types.JobRequirement{
		RequiredSkills: []string{"go"},
		Experience:     types.ExperienceRange{Min: 1, Max: 3},
		Location:       "Shanghai",
	}
	candidate := &types.CandidateProfile{
		ID:              "c3",
		Skills:          []string{"go"},
		YearsExperience: 2,
		Location:        "Shanghai",
	}

	// 基础分已是100，加分后仍被钳制在100
	breakdown, err := w.ScoreCandidate(context.Background(), job, candidate)
	require.NoError(t, err)
	assert.Equal(t, 100, breakdown.MatchScore)
}

func TestWeightedScorerLocationBonusApplied(t *testing.T) {
	w := NewWeightedScorer()

	job := &types.JobRequirement{
		RequiredSkills: []string{"python", "sql"},
		Experience:     types.ExperienceRange{Min: 2, Max: 5},
		Location:       "Beijing",
	}
	base := &types.CandidateProfile{
		ID:              "c4",
		Skills:          []string{"python"},
		YearsExperience: 1,
	}
	local := &types.CandidateProfile{
		ID:              "c5",
		Skills:          []string{"python"},
		YearsExperience: 1,
		Location:        "Beijing",
	}

	baseBreakdown, err := w.ScoreCandidate(context.Background(), job, base)
	require.NoError(t, err)
	localBreakdown, err := w.ScoreCandidate(context.Background(), job, local)
	require.NoError(t, err)

	assert.Equal(t, baseBreakdown.MatchScore+5, localBreakdown.MatchScore)
}

func TestWeightedScorerInvalidProfile(t *testing.T) {
	w := NewWeightedScorer()

	job := &types.JobRequirement{RequiredSkills: []string{"go"}}

	_, err := w.ScoreCandidate(context.Background(), job, &types.CandidateProfile{ID: "c1", Skills: nil})
	assert.ErrorIs(t, err, ErrMissingSkillsField)

	_, err = w.ScoreCandidate(context.Background(), job, &types.CandidateProfile{Skills: []string{}})
	assert.ErrorIs(t, err, ErrMissingCandidateID)
}

func TestWeightedScorerDeterministic(t *testing.T) {
	w := NewWeightedScorer()

	job := &types.JobRequirement{
		RequiredSkills:  []string{"go", "kafka"},
		PreferredSkills: []string{"redis"},
		Experience:      types.ExperienceRange{Min: 3, Max: 8},
		EducationLevel:  types.EducationBachelor,
	}
	candidate := &types.CandidateProfile{
		ID:              "c1",
		Skills:          []string{"go", "redis"},
		YearsExperience: 2,
		EducationLevel:  types.EducationMaster,
		ExpectedSalary:  intPtr(30000),
	}

	first, err := w.ScoreCandidate(context.Background(), job, candidate)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := w.ScoreCandidate(context.Background(), job, candidate)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.GreaterOrEqual(t, first.MatchScore, 0)
	assert.LessOrEqual(t, first.MatchScore, 100)
}
