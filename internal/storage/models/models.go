package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ScreeningRun 筛选运行主表
// 运行独占其结果与统计，状态机进入终态后不再被其他组件修改
type ScreeningRun struct {
	RunUUID            string         `gorm:"type:char(36);primaryKey"`
	JobTitle           string         `gorm:"type:varchar(255);not null"`
	JobRequirementJSON datatypes.JSON `gorm:"type:json;not null"` // 岗位要求的不可变快照
	CandidatePoolKey   string         `gorm:"type:varchar(1024)"` // 候选池快照在MinIO中的对象路径
	CandidateCount     int            `gorm:"not null;default:0"` // 提交的候选人总数（含校验失败者）
	ProcessingStatus   string         `gorm:"type:varchar(50);default:'PENDING';index:idx_sr_processing_status"`
	FailureReason      string         `gorm:"type:varchar(100)"`
	FailuresJSON       datatypes.JSON `gorm:"type:json"` // 单候选人失败记录列表

	// 运行级统计，COMPLETED后为终态值
	TotalCandidates     int `gorm:"not null;default:0"`
	QualifiedCandidates int `gorm:"not null;default:0"`
	AverageScore        int `gorm:"not null;default:0"`
	TopScore            int `gorm:"not null;default:0"`
	FailedCandidates    int `gorm:"not null;default:0"`

	ArchivePathOSS string    `gorm:"type:varchar(1024)"` // 终态结果归档在MinIO中的对象路径
	CreatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ScreeningRun) TableName() string {
	return "screening_runs"
}

// CandidateResultRecord 单候选人评分结果表
// 每条结果归属且仅归属一个运行，名次在运行内唯一
type CandidateResultRecord struct {
	ResultID        uint64    `gorm:"primaryKey;autoIncrement"`
	RunUUID         string    `gorm:"type:char(36);not null;index:idx_crr_run_uuid;uniqueIndex:idx_crr_run_rank,priority:1"`
	ResumeID        string    `gorm:"type:varchar(64);not null;index:idx_crr_resume_id"`
	CandidateName   string    `gorm:"type:varchar(255)"`
	MatchScore      int       `gorm:"not null;index:idx_crr_match_score"`
	SkillsMatch     int       `gorm:"not null"`
	ExperienceMatch bool      `gorm:"not null"`
	EducationMatch  bool      `gorm:"not null"`
	OverallRank     int       `gorm:"not null;uniqueIndex:idx_crr_run_rank,priority:2"`
	CreatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	ScreeningRun *ScreeningRun `gorm:"foreignKey:RunUUID;references:RunUUID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (CandidateResultRecord) TableName() string {
	return "candidate_result_records"
}

// OutboxMessage represents a message to be published asynchronously.
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement"`
	AggregateID      string     `gorm:"type:varchar(36);not null;index"`
	EventType        string     `gorm:"type:varchar(255);not null"`
	Payload          string     `gorm:"type:json;not null"` // Storing as string to handle JSON
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at"`
	RetryCount       int        `gorm:"default:0"`
	CreatedAt        time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_outbox_status_created_at,sort:asc"`
	ProcessedAt      *time.Time `gorm:"type:datetime(6);null"`
	ErrorMessage     string     `gorm:"type:text"`
}

// TableName specifies the table name for the OutboxMessage model.
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// MapToJSON Helper function to convert a value to datatypes.JSON
func MapToJSON(v interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
