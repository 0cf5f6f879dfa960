package scorer

import (
	"context"
	"errors"

	"ats-screening-go/internal/types"
)

// 画像不合法的基础错误类型
var (
	ErrNilProfile         = errors.New("候选人画像为空")
	ErrMissingCandidateID = errors.New("候选人ID缺失")
	ErrMissingSkillsField = errors.New("候选人技能字段缺失")
	ErrNegativeExperience = errors.New("候选人经验年限为负数")
	ErrInvalidEducation   = errors.New("候选人学历枚举值不合法")
)

// ScoreBreakdown 组合评分的完整产物，包含各布尔匹配位
type ScoreBreakdown struct {
	MatchScore      int  // 0-100，加权组合分
	SkillsMatch     int  // 0-100，技能子分
	ExperienceMatch bool // 经验年限是否达到下限
	EducationMatch  bool // 学历是否达到要求
}

// CriterionScorer 单项评分策略：纯函数，无副作用，可并发调用
type CriterionScorer interface {
	// Name 返回评分维度名称，用于日志与追踪
	Name() string
	// Score 返回0-100的子分
	Score(job *types.JobRequirement, candidate *types.CandidateProfile) float64
}

// MatchScorer 组合评分器：将各子分组合成单一匹配分
// 相同的(job, candidate)输入必须产生相同的输出
type MatchScorer interface {
	ScoreCandidate(ctx context.Context, job *types.JobRequirement, candidate *types.CandidateProfile) (*ScoreBreakdown, error)
}

// ValidateProfile 在评分前校验候选人画像的必要字段
// 不合法的画像在引擎中被隔离为单候选人失败，不会中断批次
func ValidateProfile(candidate *types.CandidateProfile) error {
	if candidate == nil {
		return ErrNilProfile
	}
	if candidate.ID == "" {
		return ErrMissingCandidateID
	}
	if candidate.Skills == nil {
		return ErrMissingSkillsField
	}
	if candidate.YearsExperience < 0 {
		return ErrNegativeExperience
	}
	if !candidate.EducationLevel.IsValid() {
		return ErrInvalidEducation
	}
	return nil
}
