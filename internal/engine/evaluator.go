package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"ats-screening-go/internal/logger"
	"ats-screening-go/internal/scorer"
	"ats-screening-go/internal/types"
)

// BatchOutcome 批量评估的完整产物：成功与失败互相独立
// Successes 保持输入顺序，名次尚未分配
type BatchOutcome struct {
	Successes []types.CandidateResult
	Failures  []types.CandidateFailure
}

// BatchEvaluator 将组合评分器扇出到整个候选池
// 每个候选人的评估相互独立且无副作用，由有界worker并行执行；
// 单个候选人的评分失败被隔离记录，不会中断批次
type BatchEvaluator struct {
	scorer      scorer.MatchScorer
	concurrency int
}

// NewBatchEvaluator 创建批量评估器，concurrency<=0时取CPU核数
func NewBatchEvaluator(matchScorer scorer.MatchScorer, concurrency int) *BatchEvaluator {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &BatchEvaluator{
		scorer:      matchScorer,
		concurrency: concurrency,
	}
}

// evalSlot 每个worker只写自己的槽位，join点是唯一的聚合读者，
// 避免对共享运行状态的并发写
type evalSlot struct {
	result  *types.CandidateResult
	failure *types.CandidateFailure
}

// Evaluate 对候选池中的每个候选人独立评分，全部尝试完毕后一次性返回
// N=0时立即返回空成功集，不是错误。
// 取消只阻止尚未调度的评估，在途评估允许完成；未被调度的候选人
// 记入失败集，调用方通过返回的error得知批次被取消
func (e *BatchEvaluator) Evaluate(ctx context.Context, job *types.JobRequirement, candidates []types.CandidateProfile) (*BatchOutcome, error) {
	if job == nil {
		return nil, NewValidationError("job", "岗位要求不能为空")
	}
	if len(candidates) == 0 {
		return &BatchOutcome{Successes: []types.CandidateResult{}}, nil
	}

	slots := make([]evalSlot, len(candidates))

	g := &errgroup.Group{}
	g.SetLimit(e.concurrency)

	scheduled := 0
	for i := range candidates {
		// 取消后停止调度新的评估，在途的自然结束
		if ctx.Err() != nil {
			break
		}
		scheduled++

		idx := i
		candidate := candidates[i]
		g.Go(func() error {
			breakdown, err := e.scorer.ScoreCandidate(ctx, job, &candidate)
			if err != nil {
				scoringErr := NewCandidateScoringError(candidate.ID, err, "")
				logger.Ctx(ctx).Debug().
					Str("candidate_id", candidate.ID).
					Err(scoringErr).
					Msg("候选人评分失败，已隔离")
				slots[idx].failure = &types.CandidateFailure{
					CandidateID: candidate.ID,
					Reason:      err.Error(),
				}
				return nil
			}
			slots[idx].result = &types.CandidateResult{
				ResumeID:        candidate.ID,
				CandidateName:   candidate.Name,
				MatchScore:      breakdown.MatchScore,
				SkillsMatch:     breakdown.SkillsMatch,
				ExperienceMatch: breakdown.ExperienceMatch,
				EducationMatch:  breakdown.EducationMatch,
			}
			return nil
		})
	}

	// join屏障：所有已调度的评估结束前，任何部分结果都不对外可见
	_ = g.Wait()

	outcome := &BatchOutcome{
		Successes: make([]types.CandidateResult, 0, len(candidates)),
		Failures:  make([]types.CandidateFailure, 0),
	}
	for i := 0; i < scheduled; i++ {
		if slots[i].result != nil {
			outcome.Successes = append(outcome.Successes, *slots[i].result)
		} else if slots[i].failure != nil {
			outcome.Failures = append(outcome.Failures, *slots[i].failure)
		}
	}

	if err := ctx.Err(); err != nil {
		// 未被调度的候选人记为失败，保持结果完整可追溯
		for i := scheduled; i < len(candidates); i++ {
			outcome.Failures = append(outcome.Failures, types.CandidateFailure{
				CandidateID: candidates[i].ID,
				Reason:      "运行取消，未进入评估",
			})
		}
		return outcome, context.Cause(ctx)
	}

	return outcome, nil
}
