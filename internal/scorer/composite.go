package scorer

import (
	"context"
	"math"

	"ats-screening-go/internal/types"
)

// 组合评分的固定默认权重，属于文档化策略而非岗位级配置
const (
	defaultSkillWeight      = 0.6
	defaultExperienceWeight = 0.25
	defaultEducationWeight  = 0.15
)

// WeightedScorer 加权组合评分器，实现 MatchScorer
// 对相同输入保证确定性输出：无随机、无时钟依赖
type WeightedScorer struct {
	skill      *SkillScorer
	experience *ExperienceScorer
	education  *EducationScorer
	location   *LocationScorer

	skillWeight      float64
	experienceWeight float64
	educationWeight  float64
}

// WeightedScorerOption 组合评分器选项函数类型
type WeightedScorerOption func(*WeightedScorer)

// WithWeights 覆盖默认权重，仅供上层按需暴露为配置，默认行为不变
func WithWeights(skill, experience, education float64) WeightedScorerOption {
	return func(w *WeightedScorer) {
		w.skillWeight = skill
		w.experienceWeight = experience
		w.educationWeight = education
	}
}

// WithLocationBonusCap 覆盖地点加分上限
func WithLocationBonusCap(bonusCap int) WeightedScorerOption {
	return func(w *WeightedScorer) {
		w.location = NewLocationScorer(bonusCap)
	}
}

// NewWeightedScorer 创建默认权重的组合评分器
func NewWeightedScorer(opts ...WeightedScorerOption) *WeightedScorer {
	w := &WeightedScorer{
		skill:            NewSkillScorer(),
		experience:       NewExperienceScorer(),
		education:        NewEducationScorer(),
		location:         NewLocationScorer(0),
		skillWeight:      defaultSkillWeight,
		experienceWeight: defaultExperienceWeight,
		educationWeight:  defaultEducationWeight,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ScoreCandidate 计算单个候选人的组合匹配分
// matchScore = round(0.6*skill + 0.25*experience + 0.15*education) + 地点加分，截断到[0,100]
func (w *WeightedScorer) ScoreCandidate(ctx context.Context, job *types.JobRequirement, candidate *types.CandidateProfile) (*ScoreBreakdown, error) {
	if err := ValidateProfile(candidate); err != nil {
		return nil, err
	}

	skillScore := w.skill.Score(job, candidate)
	experienceScore := w.experience.Score(job, candidate)
	educationScore := w.education.Score(job, candidate)

	weighted := w.skillWeight*skillScore + w.experienceWeight*experienceScore + w.educationWeight*educationScore
	matchScore := int(math.Round(weighted)) + w.location.Bonus(job, candidate)

	// 截断到[0,100]
	if matchScore > 100 {
		matchScore = 100
	}
	if matchScore < 0 {
		matchScore = 0
	}

	return &ScoreBreakdown{
		MatchScore:      matchScore,
		SkillsMatch:     int(math.Round(skillScore)),
		ExperienceMatch: w.experience.Matches(job, candidate),
		EducationMatch:  w.education.Matches(job, candidate),
	}, nil
}
