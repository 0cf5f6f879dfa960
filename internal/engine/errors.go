package engine

import (
	"errors"
	"fmt"
)

// 引擎级基础错误类型
var (
	// ErrRunNotFound 指定的运行不存在
	ErrRunNotFound = errors.New("筛选运行不存在")
	// ErrRunNotTerminal 运行尚未到达终态，不允许重跑
	ErrRunNotTerminal = errors.New("筛选运行尚未结束")
	// ErrRunAlreadyTerminal 运行已到达终态，不允许取消
	ErrRunAlreadyTerminal = errors.New("筛选运行已结束")
	// ErrRunCancelled 运行被显式取消
	ErrRunCancelled = errors.New("筛选运行已取消")
	// ErrAllCandidatesFailed 非空候选池中没有任何候选人评分成功
	ErrAllCandidatesFailed = errors.New("全部候选人评分失败")
	// ErrCandidateSourceUnavailable 候选人数据源不可用，评估无法进行
	ErrCandidateSourceUnavailable = errors.New("候选人数据源不可用")
)

// ValidationError 岗位要求不合法，在运行创建前同步返回给调用方
type ValidationError struct {
	Field  string // 出错的字段
	Reason string // 违反的约束
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("岗位要求校验失败 (字段:%s): %s", e.Field, e.Reason)
}

// NewValidationError 创建岗位要求校验错误
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError 判断错误是否为校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CandidateScoringError 单候选人评分失败，被批量评估器捕获隔离，
// 从不向StartRun调用方传播
type CandidateScoringError struct {
	CandidateID string
	BaseErr     error
	Detail      string
}

func (e *CandidateScoringError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("候选人评分失败 (ID:%s): %v: %s", e.CandidateID, e.BaseErr, e.Detail)
	}
	return fmt.Sprintf("候选人评分失败 (ID:%s): %v", e.CandidateID, e.BaseErr)
}

func (e *CandidateScoringError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *CandidateScoringError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// NewCandidateScoringError 创建单候选人评分错误
func NewCandidateScoringError(candidateID string, baseErr error, detail string) error {
	return &CandidateScoringError{
		CandidateID: candidateID,
		BaseErr:     baseErr,
		Detail:      detail,
	}
}

// RunFailureError 整个运行失败（全部候选人失败或评估无法进行），
// 仅通过GetRunResult的终态暴露，不会异步抛给无关代码
type RunFailureError struct {
	RunID   string
	Reason  string // constants.FailureReason*
	BaseErr error
}

func (e *RunFailureError) Error() string {
	return fmt.Sprintf("筛选运行失败 (运行:%s, 原因:%s): %v", e.RunID, e.Reason, e.BaseErr)
}

func (e *RunFailureError) Unwrap() error {
	return e.BaseErr
}
