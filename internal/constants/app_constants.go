package constants

import "time"

// 筛选运行的处理状态
const (
	// RunStatusPending 运行已创建，尚未开始评估
	RunStatusPending = "PENDING"
	// RunStatusProcessing 批量评估进行中
	RunStatusProcessing = "PROCESSING"
	// RunStatusCompleted 排序与统计已完成，结果为终态
	RunStatusCompleted = "COMPLETED"
	// RunStatusFailed 全部候选人失败、评估无法进行或被取消
	RunStatusFailed = "FAILED"
)

// 运行失败原因，写入ScreeningRun.FailureReason供调用方区分
const (
	// FailureReasonAllCandidatesFailed 非空候选池全部评分失败
	FailureReasonAllCandidatesFailed = "ALL_CANDIDATES_FAILED"
	// FailureReasonCancelled 运行被显式取消
	FailureReasonCancelled = "CANCELLED"
	// FailureReasonSourceUnavailable 候选人数据源不可用
	FailureReasonSourceUnavailable = "CANDIDATE_SOURCE_UNAVAILABLE"
	// FailureReasonInvalidJob 岗位要求不合法，异步路径下校验漏网时的兜底
	FailureReasonInvalidJob = "INVALID_JOB_REQUIREMENT"
)

const (
	// DefaultQualifyingThreshold 统计中计入"合格"的最低匹配分
	DefaultQualifyingThreshold = 60
	// DefaultLocationBonusCap 地点匹配加分上限
	DefaultLocationBonusCap = 5

	// RunStatusCacheDuration 运行状态在Redis中的缓存时长
	RunStatusCacheDuration = 24 * time.Hour
	// RunResultCacheDuration 排序结果集在Redis中的缓存时长
	RunResultCacheDuration = 24 * time.Hour
)
