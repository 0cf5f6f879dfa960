package types

import "strings"

// EducationLevel 学历层级，按枚举顺序比较高低
type EducationLevel string

const (
	// EducationNone 无学历
	EducationNone EducationLevel = "none"
	// EducationHighSchool 高中
	EducationHighSchool EducationLevel = "highschool"
	// EducationBachelor 本科
	EducationBachelor EducationLevel = "bachelor"
	// EducationMaster 硕士
	EducationMaster EducationLevel = "master"
	// EducationPhD 博士
	EducationPhD EducationLevel = "phd"
)

// educationRanks 学历层级的固定排序，数值越大层级越高
var educationRanks = map[EducationLevel]int{
	EducationNone:       0,
	EducationHighSchool: 1,
	EducationBachelor:   2,
	EducationMaster:     3,
	EducationPhD:        4,
}

// Rank 返回学历在枚举顺序中的位置，未知学历返回-1
func (e EducationLevel) Rank() int {
	rank, ok := educationRanks[EducationLevel(strings.ToLower(string(e)))]
	if !ok {
		return -1
	}
	return rank
}

// IsValid 判断是否为合法的学历枚举值，空串表示无要求也视为合法
func (e EducationLevel) IsValid() bool {
	return e == "" || e.Rank() >= 0
}

// ExperienceRange 经验年限区间，Min/Max均为非负整数且Min<=Max
type ExperienceRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// SalaryRange 薪资区间，可选；两端都存在时要求Min<=Max
type SalaryRange struct {
	Min *int `json:"min,omitempty" yaml:"min,omitempty"`
	Max *int `json:"max,omitempty" yaml:"max,omitempty"`
}

// JobRequirement 一次筛选运行的岗位要求，创建后不可变
type JobRequirement struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	RequiredSkills  []string        `json:"required_skills"`  // 必备技能，非空、已规范化、去重
	PreferredSkills []string        `json:"preferred_skills"` // 加分技能，可为空
	Experience      ExperienceRange `json:"experience"`
	EducationLevel  EducationLevel  `json:"education_level"` // 空串表示无学历要求
	Location        string          `json:"location,omitempty"`
	Salary          SalaryRange     `json:"salary,omitempty"`
	JobCategory     string          `json:"job_category,omitempty"` // 分类元数据，不参与评分
	Priority        int             `json:"priority,omitempty"`     // 1-5，分类元数据，不参与评分
}

// CandidateProfile 已结构化的候选人画像，对引擎只读
type CandidateProfile struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Skills          []string       `json:"skills"`
	YearsExperience int            `json:"years_experience"`
	EducationLevel  EducationLevel `json:"education_level"`
	Location        string         `json:"location,omitempty"`
	ExpectedSalary  *int           `json:"expected_salary,omitempty"`
}

// CandidateResult 单个候选人的评分结果
type CandidateResult struct {
	ResumeID        string `json:"resume_id"`
	CandidateName   string `json:"candidate_name"`
	MatchScore      int    `json:"match_score"`  // 0-100
	SkillsMatch     int    `json:"skills_match"` // 0-100
	ExperienceMatch bool   `json:"experience_match"`
	EducationMatch  bool   `json:"education_match"`
	OverallRank     int    `json:"overall_rank"` // 排序后的1-based名次，运行内唯一
}

// CandidateFailure 单个候选人评分失败的记录，不影响整个批次
type CandidateFailure struct {
	CandidateID string `json:"candidate_id"`
	Reason      string `json:"reason"`
}

// RunStatistics 运行级汇总统计
type RunStatistics struct {
	TotalCandidates     int `json:"total_candidates"`     // 成功评分的候选人数N
	QualifiedCandidates int `json:"qualified_candidates"` // 达到合格阈值的人数，<=N
	AverageScore        int `json:"average_score"`        // 匹配分的算术平均值，四舍五入
	TopScore            int `json:"top_score"`            // 最高匹配分，N=0时为0
	FailedCandidates    int `json:"failed_candidates"`    // 评分失败的候选人数
}

// RunResult 运行的终态产物：排序后的结果集加统计
type RunResult struct {
	Results    []CandidateResult  `json:"results"`
	Statistics RunStatistics      `json:"statistics"`
	Failures   []CandidateFailure `json:"failures,omitempty"`
}

// NormalizeSkills 规范化技能集合：小写、去首尾空白、去重、剔除空串
// 保持首次出现的顺序，便于结果可复现
func NormalizeSkills(skills []string) []string {
	if len(skills) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		normalized := strings.ToLower(strings.TrimSpace(s))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
