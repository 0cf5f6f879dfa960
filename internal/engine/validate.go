package engine

import "ats-screening-go/internal/types"

// ValidateJobRequirement 同步校验岗位要求的结构不变量
// 任何违反都会导致StartRun快速失败，运行不会被创建
func ValidateJobRequirement(job *types.JobRequirement) error {
	if job == nil {
		return NewValidationError("job", "岗位要求不能为空")
	}
	if len(types.NormalizeSkills(job.RequiredSkills)) == 0 {
		return NewValidationError("required_skills", "必备技能集合不能为空")
	}
	if job.Experience.Min < 0 || job.Experience.Max < 0 {
		return NewValidationError("experience", "经验年限不能为负数")
	}
	if job.Experience.Min > job.Experience.Max {
		return NewValidationError("experience", "经验下限不能大于上限")
	}
	if !job.EducationLevel.IsValid() {
		return NewValidationError("education_level", "学历枚举值不合法")
	}
	if job.Salary.Min != nil && *job.Salary.Min < 0 {
		return NewValidationError("salary", "薪资下限不能为负数")
	}
	if job.Salary.Min != nil && job.Salary.Max != nil && *job.Salary.Min > *job.Salary.Max {
		return NewValidationError("salary", "薪资下限不能大于上限")
	}
	if job.Priority != 0 && (job.Priority < 1 || job.Priority > 5) {
		return NewValidationError("priority", "优先级必须在1-5之间")
	}
	return nil
}

// NormalizeJobRequirement 返回技能集合已规范化的岗位要求副本
// 引擎内部评分始终基于规范化副本，输入对象保持不可变
func NormalizeJobRequirement(job *types.JobRequirement) *types.JobRequirement {
	normalized := *job
	normalized.RequiredSkills = types.NormalizeSkills(job.RequiredSkills)
	normalized.PreferredSkills = types.NormalizeSkills(job.PreferredSkills)
	return &normalized
}
