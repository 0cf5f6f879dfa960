package scorer

import "ats-screening-go/internal/types"

// ExperienceScorer 经验子分：区间内满分，低于下限按比例给分，超出上限不惩罚
type ExperienceScorer struct{}

// NewExperienceScorer 创建经验评分器
func NewExperienceScorer() *ExperienceScorer {
	return &ExperienceScorer{}
}

// Name 返回评分维度名称
func (s *ExperienceScorer) Name() string {
	return "experience"
}

// Score 返回0-100的经验子分
// min=0 时表示无经验下限，任何年限都满分
func (s *ExperienceScorer) Score(job *types.JobRequirement, candidate *types.CandidateProfile) float64 {
	years := candidate.YearsExperience
	minYears := job.Experience.Min

	if minYears <= 0 {
		return 100
	}
	if years < minYears {
		return 100 * float64(years) / float64(minYears)
	}
	// 在区间内或超出上限均为满分，过度资历不扣分
	return 100
}

// Matches 经验是否达标：仅看下限，上限只是建议性的
func (s *ExperienceScorer) Matches(job *types.JobRequirement, candidate *types.CandidateProfile) bool {
	return candidate.YearsExperience >= job.Experience.Min
}
