package scorer

import (
	"strings"

	"ats-screening-go/internal/types"
)

const (
	requiredSkillWeight  = 0.8
	preferredSkillWeight = 0.2
)

// SkillScorer 技能子分：必备技能命中率与加分技能命中率的加权和
// 匹配方式为规范化后的大小写不敏感精确匹配，不做模糊匹配
type SkillScorer struct{}

// NewSkillScorer 创建技能评分器
func NewSkillScorer() *SkillScorer {
	return &SkillScorer{}
}

// Name 返回评分维度名称
func (s *SkillScorer) Name() string {
	return "skills"
}

// Score 返回0-100的技能子分
// 空的必备/加分技能集合视为命中率1（无要求即满足）
func (s *SkillScorer) Score(job *types.JobRequirement, candidate *types.CandidateProfile) float64 {
	candidateSkills := make(map[string]struct{}, len(candidate.Skills))
	for _, skill := range candidate.Skills {
		candidateSkills[strings.ToLower(strings.TrimSpace(skill))] = struct{}{}
	}

	requiredRatio := hitRatio(job.RequiredSkills, candidateSkills)
	preferredRatio := hitRatio(job.PreferredSkills, candidateSkills)

	return (requiredSkillWeight*requiredRatio + preferredSkillWeight*preferredRatio) * 100
}

// hitRatio 计算命中率 |候选技能 ∩ 要求技能| / |要求技能|，要求为空时返回1
func hitRatio(wanted []string, candidateSkills map[string]struct{}) float64 {
	if len(wanted) == 0 {
		return 1
	}
	hits := 0
	for _, skill := range wanted {
		if _, ok := candidateSkills[strings.ToLower(strings.TrimSpace(skill))]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(wanted))
}
