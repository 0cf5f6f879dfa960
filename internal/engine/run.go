package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ats-screening-go/internal/constants"
	"ats-screening-go/internal/types"
)

// Run 一次筛选运行的状态机
// 状态单向流转: PENDING → PROCESSING → COMPLETED/FAILED，
// 仅显式重跑可以把终态原子地重置回PENDING并丢弃旧结果。
// 运行独占其结果与统计：评估goroutine是唯一写者，取消只通过context传递
type Run struct {
	mu sync.RWMutex

	id          string
	job         *types.JobRequirement
	candidates  []types.CandidateProfile
	preFailures []types.CandidateFailure // 边界校验阶段被隔离的候选人

	status        string
	failureReason string
	failureErr    error
	result        *types.RunResult

	createdAt time.Time
	updatedAt time.Time

	cancel    context.CancelCauseFunc
	cancelled bool
	done      chan struct{}
}

// RunSnapshot 运行状态的只读快照，跨goroutine安全传递
type RunSnapshot struct {
	RunID         string                   `json:"run_id"`
	Status        string                   `json:"status"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	Results       []types.CandidateResult  `json:"results,omitempty"`
	Statistics    *types.RunStatistics     `json:"statistics,omitempty"`
	Failures      []types.CandidateFailure `json:"failures,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// IsTerminal 是否已到达终态
func (s *RunSnapshot) IsTerminal() bool {
	return s.Status == constants.RunStatusCompleted || s.Status == constants.RunStatusFailed
}

func newRun(id string, job *types.JobRequirement, candidates []types.CandidateProfile, preFailures []types.CandidateFailure) *Run {
	now := time.Now()
	return &Run{
		id:          id,
		job:         job,
		candidates:  candidates,
		preFailures: preFailures,
		status:      constants.RunStatusPending, // 新运行一律从PENDING开始
		createdAt:   now,
		updatedAt:   now,
		done:        make(chan struct{}),
	}
}

// ID 返回运行标识
func (r *Run) ID() string {
	return r.id
}

// Snapshot 返回当前状态的快照
// 结果与统计只在COMPLETED时填充，失败列表在任一终态可见，
// 非终态绝不暴露部分结果
func (r *Run) Snapshot() *RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &RunSnapshot{
		RunID:         r.id,
		Status:        r.status,
		FailureReason: r.failureReason,
		CreatedAt:     r.createdAt,
		UpdatedAt:     r.updatedAt,
	}
	if r.result == nil {
		return snap
	}
	switch r.status {
	case constants.RunStatusCompleted:
		snap.Results = r.result.Results
		snap.Statistics = &r.result.Statistics
		snap.Failures = r.result.Failures
	case constants.RunStatusFailed:
		snap.Failures = r.result.Failures
	}
	return snap
}

// markProcessing PENDING → PROCESSING
func (r *Run) markProcessing() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != constants.RunStatusPending {
		return fmt.Errorf("非法状态流转: %s → %s", r.status, constants.RunStatusProcessing)
	}
	r.status = constants.RunStatusProcessing
	r.updatedAt = time.Now()
	return nil
}

// complete PROCESSING → COMPLETED，写入终态结果
func (r *Run) complete(result *types.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = constants.RunStatusCompleted
	r.failureReason = ""
	r.failureErr = nil
	r.result = result
	r.updatedAt = time.Now()
	close(r.done)
}

// fail PROCESSING → FAILED，带区分原因与失败错误
func (r *Run) fail(reason string, result *types.RunResult, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = constants.RunStatusFailed
	r.failureReason = reason
	r.failureErr = &RunFailureError{RunID: r.id, Reason: reason, BaseErr: cause}
	r.result = result
	r.updatedAt = time.Now()
	close(r.done)
}

// Err 返回导致运行进入FAILED终态的错误，其他状态下为nil
// 返回的错误可通过errors.Is与引擎哨兵错误比较
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failureErr
}

// resetForRerun 终态 → PENDING，原子地丢弃旧结果
// 旧结果与新结果绝不混合对外可见
func (r *Run) resetForRerun() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != constants.RunStatusCompleted && r.status != constants.RunStatusFailed {
		return ErrRunNotTerminal
	}
	r.status = constants.RunStatusPending
	r.failureReason = ""
	r.failureErr = nil
	r.result = nil
	r.cancel = nil
	r.cancelled = false
	r.done = make(chan struct{})
	r.updatedAt = time.Now()
	return nil
}

// setCancelFunc 记录本轮评估的取消函数
func (r *Run) setCancelFunc(cancel context.CancelCauseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = cancel
}

// requestCancel 请求取消在途评估：停止调度新评估，在途的允许完成
// 已到终态时返回错误
func (r *Run) requestCancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == constants.RunStatusCompleted || r.status == constants.RunStatusFailed {
		return ErrRunAlreadyTerminal
	}
	r.cancelled = true
	if r.cancel != nil {
		r.cancel(ErrRunCancelled)
	}
	return nil
}

// cancelRequested 是否已有取消请求（可能早于评估启动）
func (r *Run) cancelRequested() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelled
}

// doneCh 返回本轮评估的完成通道
func (r *Run) doneCh() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done
}

// Wait 阻塞直到运行到达终态或ctx结束
func (r *Run) Wait(ctx context.Context) (*RunSnapshot, error) {
	select {
	case <-r.doneCh():
		return r.Snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
