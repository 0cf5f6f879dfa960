package storage

import "time"

// RunRequestedMessage 筛选运行请求消息
type RunRequestedMessage struct {
	// 与数据库表字段一致的主要字段
	EventID           string    `json:"event_id"`                      // 事件唯一标识，消费侧幂等去重用
	RunUUID           string    `json:"run_uuid"`                      // 运行UUID，主键
	RequestedAt       time.Time `json:"requested_at"`                  // 请求时间戳
	CandidatePoolKey  string    `json:"candidate_pool_key,omitempty"`  // 候选人快照在MinIO中的对象路径
	CandidateCount    int       `json:"candidate_count,omitempty"`     // 快照中的候选人数量
	TriggeredBy       string    `json:"triggered_by,omitempty"`        // 触发来源 (create/rerun)
	RequestingHRID    string    `json:"requesting_hr_id,omitempty"`    // 发起请求的HR标识
	PreviousRunStatus string    `json:"previous_run_status,omitempty"` // 重跑前的终态 (仅rerun携带)
}

// RunCompletedMessage 筛选运行完成通知消息
type RunCompletedMessage struct {
	EventID          string `json:"event_id"`                   // 事件唯一标识
	RunUUID          string `json:"run_uuid"`                   // 运行UUID
	ProcessingStatus string `json:"processing_status"`          // 终态 (COMPLETED/FAILED)
	FailureReason    string `json:"failure_reason,omitempty"`   // 失败原因代码
	TotalCandidates  int    `json:"total_candidates,omitempty"` // 参评候选人总数
	TopScore         int    `json:"top_score,omitempty"`        // 最高匹配分
	ArchivePathOSS   string `json:"archive_path_oss,omitempty"` // 结果归档在MinIO中的路径
	CompletedAt      int64  `json:"completed_at,omitempty"`     // Unix时间戳
}
