package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/gofrs/uuid/v5"

	"ats-screening-go/internal/constants"
	"ats-screening-go/internal/logger"
	"ats-screening-go/internal/scorer"
	"ats-screening-go/internal/types"
)

// RunObserver 接收运行的状态流转通知
// 存储层通过它持久化运行进度与终态，引擎本身不感知任何存储细节
type RunObserver interface {
	OnRunTransition(ctx context.Context, snapshot *RunSnapshot)
}

// NoopObserver 空实现，供测试与无持久化场景使用
type NoopObserver struct{}

// OnRunTransition 实现 RunObserver，不做任何事
func (NoopObserver) OnRunTransition(ctx context.Context, snapshot *RunSnapshot) {}

// Engine 筛选引擎门面，对外暴露运行的创建、查询、取消与重跑
type Engine struct {
	matchScorer         scorer.MatchScorer
	qualifyingThreshold int
	concurrencyLimit    int
	locationBonusCap    int
	observer            RunObserver

	evaluator *BatchEvaluator
	ranker    *Ranker

	mu   sync.RWMutex
	runs map[string]*Run
}

// Option 引擎选项函数类型
type Option func(*Engine)

// WithMatchScorer 替换组合评分器，供测试注入
func WithMatchScorer(matchScorer scorer.MatchScorer) Option {
	return func(e *Engine) {
		e.matchScorer = matchScorer
	}
}

// WithQualifyingThreshold 覆盖合格阈值，仅影响统计
func WithQualifyingThreshold(threshold int) Option {
	return func(e *Engine) {
		e.qualifyingThreshold = threshold
	}
}

// WithConcurrencyLimit 覆盖批量评估的并行上限
func WithConcurrencyLimit(limit int) Option {
	return func(e *Engine) {
		e.concurrencyLimit = limit
	}
}

// WithLocationBonusCap 覆盖地点加分上限
func WithLocationBonusCap(bonusCap int) Option {
	return func(e *Engine) {
		e.locationBonusCap = bonusCap
	}
}

// WithObserver 注册状态流转观察者
func WithObserver(observer RunObserver) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// NewEngine 创建筛选引擎
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		qualifyingThreshold: constants.DefaultQualifyingThreshold,
		locationBonusCap:    constants.DefaultLocationBonusCap,
		observer:            NoopObserver{},
		runs:                make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.matchScorer == nil {
		e.matchScorer = scorer.NewWeightedScorer(scorer.WithLocationBonusCap(e.locationBonusCap))
	}
	e.evaluator = NewBatchEvaluator(e.matchScorer, e.concurrencyLimit)
	e.ranker = NewRanker(e.qualifyingThreshold)
	return e
}

// StartOptions 单次运行的可选参数
type StartOptions struct {
	// RunID 指定运行标识，为空时自动生成UUID
	RunID string
	// PreFailures 边界校验阶段已隔离的候选人，计入统计与失败列表
	PreFailures []types.CandidateFailure
}

// StartRun 同步校验岗位要求后创建PENDING状态的运行并开始异步评估，
// 返回可用于轮询的运行句柄
// 校验失败快速返回ValidationError，运行不会被创建
func (e *Engine) StartRun(ctx context.Context, job *types.JobRequirement, candidates []types.CandidateProfile, opts *StartOptions) (*Run, error) {
	if err := ValidateJobRequirement(job); err != nil {
		return nil, err
	}

	runID := ""
	var preFailures []types.CandidateFailure
	if opts != nil {
		runID = opts.RunID
		preFailures = opts.PreFailures
	}
	if runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		runID = id.String()
	}

	run := newRun(runID, NormalizeJobRequirement(job), candidates, preFailures)

	e.mu.Lock()
	if _, exists := e.runs[runID]; exists {
		e.mu.Unlock()
		return nil, NewValidationError("run_id", "运行标识已存在")
	}
	e.runs[runID] = run
	e.mu.Unlock()

	e.notify(ctx, run)

	go e.execute(context.WithoutCancel(ctx), run)

	return run, nil
}

// GetRun 根据运行标识取回句柄
func (e *Engine) GetRun(runID string) (*Run, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	run, ok := e.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// GetRunResult 返回运行的当前状态
// 结果与统计只在COMPLETED后填充，其他错误都只通过终态可见
func (e *Engine) GetRunResult(runID string) (*RunSnapshot, error) {
	run, err := e.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return run.Snapshot(), nil
}

// CancelRun 取消在途运行：停止调度新的候选人评估，在途评估允许完成，
// 运行以区分于普通失败的原因进入FAILED终态
func (e *Engine) CancelRun(runID string) error {
	run, err := e.GetRun(runID)
	if err != nil {
		return err
	}
	return run.requestCancel()
}

// ReleaseRun 将终态运行从引擎中移除，释放候选池与结果占用的内存
// 观察者已持久化的运行不需要继续驻留；之后的重跑从持久化快照重建
func (e *Engine) ReleaseRun(runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if !run.Snapshot().IsTerminal() {
		return ErrRunNotTerminal
	}
	delete(e.runs, runID)
	return nil
}

// Rerun 将终态运行原子地重置回PENDING并重新评估，旧结果被丢弃
func (e *Engine) Rerun(ctx context.Context, runID string) error {
	run, err := e.GetRun(runID)
	if err != nil {
		return err
	}
	if err := run.resetForRerun(); err != nil {
		return err
	}

	e.notify(ctx, run)

	go e.execute(context.WithoutCancel(ctx), run)
	return nil
}

// execute 驱动一次完整的评估流水线：处理中 → 批量评估 → 排序聚合 → 终态
// 本goroutine是运行结果的唯一写者
func (e *Engine) execute(ctx context.Context, run *Run) {
	if err := run.markProcessing(); err != nil {
		logger.Error().Err(err).Str("run_id", run.id).Msg("运行状态流转失败")
		return
	}
	e.notify(ctx, run)

	evalCtx, cancel := context.WithCancelCause(ctx)
	run.setCancelFunc(cancel)
	defer cancel(nil)
	if run.cancelRequested() {
		// 取消请求先于评估启动时立即生效
		cancel(ErrRunCancelled)
	}

	outcome, err := e.evaluator.Evaluate(evalCtx, run.job, run.candidates)

	failures := append([]types.CandidateFailure{}, run.preFailures...)
	if outcome != nil {
		failures = append(failures, outcome.Failures...)
	}

	if err != nil {
		reason := constants.FailureReasonSourceUnavailable
		if errors.Is(context.Cause(evalCtx), ErrRunCancelled) {
			reason = constants.FailureReasonCancelled
		} else if IsValidationError(err) {
			reason = constants.FailureReasonInvalidJob
		}
		logger.Warn().
			Str("run_id", run.id).
			Str("reason", reason).
			Err(err).
			Msg("筛选运行进入失败终态")
		run.fail(reason, &types.RunResult{Failures: failures}, err)
		e.notify(ctx, run)
		return
	}

	attempted := len(run.candidates) + len(run.preFailures)
	if len(outcome.Successes) == 0 && attempted > 0 {
		// 非空候选池全军覆没才算运行失败，部分失败仍是COMPLETED
		run.fail(constants.FailureReasonAllCandidatesFailed, &types.RunResult{Failures: failures}, ErrAllCandidatesFailed)
		e.notify(ctx, run)
		return
	}

	ranked := e.ranker.Rank(outcome.Successes)
	stats := e.ranker.Aggregate(ranked, len(failures))

	run.complete(&types.RunResult{
		Results:    ranked,
		Statistics: stats,
		Failures:   failures,
	})
	logger.Info().
		Str("run_id", run.id).
		Int("total", stats.TotalCandidates).
		Int("qualified", stats.QualifiedCandidates).
		Int("failed", stats.FailedCandidates).
		Int("top_score", stats.TopScore).
		Msg("筛选运行完成")
	e.notify(ctx, run)
}

// notify 向观察者推送当前快照，观察者的任何动作都不影响引擎状态
func (e *Engine) notify(ctx context.Context, run *Run) {
	if e.observer == nil {
		return
	}
	e.observer.OnRunTransition(ctx, run.Snapshot())
}
