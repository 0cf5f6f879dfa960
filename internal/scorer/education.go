package scorer

import "ats-screening-go/internal/types"

// EducationScorer 学历子分：达到要求层级满分，否则0分
type EducationScorer struct{}

// NewEducationScorer 创建学历评分器
func NewEducationScorer() *EducationScorer {
	return &EducationScorer{}
}

// Name 返回评分维度名称
func (s *EducationScorer) Name() string {
	return "education"
}

// Score 返回0或100的学历子分，岗位无学历要求时为100
func (s *EducationScorer) Score(job *types.JobRequirement, candidate *types.CandidateProfile) float64 {
	if s.Matches(job, candidate) {
		return 100
	}
	return 0
}

// Matches 候选人学历层级是否不低于岗位要求
func (s *EducationScorer) Matches(job *types.JobRequirement, candidate *types.CandidateProfile) bool {
	if job.EducationLevel == "" {
		return true
	}
	return candidate.EducationLevel.Rank() >= job.EducationLevel.Rank()
}
