package scorer

import (
	"strings"

	"ats-screening-go/internal/types"
)

// LocationScorer 地点加分：建议性维度，不参与加权，只在组合分之上加少量奖励
// 任一侧字段缺失时加0分，永不为负
type LocationScorer struct {
	bonusCap int
}

// NewLocationScorer 创建地点评分器，bonusCap<=0时使用默认上限
func NewLocationScorer(bonusCap int) *LocationScorer {
	if bonusCap <= 0 {
		bonusCap = 5
	}
	return &LocationScorer{bonusCap: bonusCap}
}

// Name 返回评分维度名称
func (s *LocationScorer) Name() string {
	return "location"
}

// Bonus 返回地点匹配奖励分，大小写不敏感的整串比较
func (s *LocationScorer) Bonus(job *types.JobRequirement, candidate *types.CandidateProfile) int {
	jobLoc := strings.ToLower(strings.TrimSpace(job.Location))
	candLoc := strings.ToLower(strings.TrimSpace(candidate.Location))
	if jobLoc == "" || candLoc == "" {
		return 0
	}
	if jobLoc == candLoc {
		return s.bonusCap
	}
	return 0
}
