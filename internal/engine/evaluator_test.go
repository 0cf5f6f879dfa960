package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-screening-go/internal/scorer"
	"ats-screening-go/internal/types"
)

// MockMatchScorer 模拟组合评分器，按候选人ID返回预设的结果或错误
type MockMatchScorer struct {
	ScoreFunc func(ctx context.Context, job *types.JobRequirement, candidate *types.CandidateProfile) (*scorer.ScoreBreakdown, error)
}

func (m *MockMatchScorer) ScoreCandidate(ctx context.Context, job *types.JobRequirement, candidate *types.CandidateProfile) (*scorer.ScoreBreakdown, error) {
	return m.ScoreFunc(ctx, job, candidate)
}

// scoreByID 简便的mock实现：ID形如"bad-*"的候选人评分失败，
// 其余返回以ID末位数字为分数的结果
func scoreByID(_ context.Context, _ *types.JobRequirement, candidate *types.CandidateProfile) (*scorer.ScoreBreakdown, error) {
	if strings.HasPrefix(candidate.ID, "bad-") {
		return nil, scorer.ErrMissingSkillsField
	}
	var score int
	fmt.Sscanf(candidate.ID, "c%d", &score)
	return &scorer.ScoreBreakdown{MatchScore: score, SkillsMatch: score}, nil
}

func TestBatchEvaluatorNilJob(t *testing.T) {
	e := NewBatchEvaluator(&MockMatchScorer{ScoreFunc: scoreByID}, 2)

	outcome, err := e.Evaluate(context.Background(), nil, []types.CandidateProfile{{ID: "c1"}})

	assert.Nil(t, outcome)
	assert.True(t, IsValidationError(err))
}

func TestBatchEvaluatorEmptyPool(t *testing.T) {
	e := NewBatchEvaluator(&MockMatchScorer{ScoreFunc: scoreByID}, 2)

	outcome, err := e.Evaluate(context.Background(), &types.JobRequirement{}, nil)

	require.NoError(t, err)
	assert.Empty(t, outcome.Successes)
	assert.Empty(t, outcome.Failures)
}

func TestBatchEvaluatorPartialFailureIsolation(t *testing.T) {
	e := NewBatchEvaluator(&MockMatchScorer{ScoreFunc: scoreByID}, 2)

	candidates := []types.CandidateProfile{
		{ID: "c80", Name: "A"},
		{ID: "bad-1", Name: "B"},
		{ID: "c70", Name: "C"},
	}

	outcome, err := e.Evaluate(context.Background(), &types.JobRequirement{}, candidates)

	require.NoError(t, err)
	require.Len(t, outcome.Successes, 2)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "bad-1", outcome.Failures[0].CandidateID)
	assert.NotEmpty(t, outcome.Failures[0].Reason)
}

func TestBatchEvaluatorPreservesInputOrder(t *testing.T) {
	e := NewBatchEvaluator(&MockMatchScorer{ScoreFunc: scoreByID}, 8)

	candidates := make([]types.CandidateProfile, 0, 50)
	for i := 0; i < 50; i++ {
		candidates = append(candidates, types.CandidateProfile{ID: fmt.Sprintf("c%d", i)})
	}

	outcome, err := e.Evaluate(context.Background(), &types.JobRequirement{}, candidates)

	require.NoError(t, err)
	require.Len(t, outcome.Successes, 50)
	for i, result := range outcome.Successes {
		assert.Equal(t, fmt.Sprintf("c%d", i), result.ResumeID, "成功集必须保持输入顺序")
	}
}

func TestBatchEvaluatorCancelledContext(t *testing.T) {
	e := NewBatchEvaluator(&MockMatchScorer{ScoreFunc: scoreByID}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	candidates := []types.CandidateProfile{
		{ID: "c10"},
		{ID: "c20"},
	}

	outcome, err := e.Evaluate(ctx, &types.JobRequirement{}, candidates)

	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, outcome)
	// 未被调度的候选人全部记入失败集
	assert.Len(t, outcome.Failures, 2)
	assert.Empty(t, outcome.Successes)
}

func TestBatchEvaluatorAllFail(t *testing.T) {
	e := NewBatchEvaluator(&MockMatchScorer{ScoreFunc: scoreByID}, 2)

	candidates := []types.CandidateProfile{
		{ID: "bad-1"},
		{ID: "bad-2"},
	}

	outcome, err := e.Evaluate(context.Background(), &types.JobRequirement{}, candidates)

	// 全员失败不是批次错误，由上层运行状态机决定终态
	require.NoError(t, err)
	assert.Empty(t, outcome.Successes)
	assert.Len(t, outcome.Failures, 2)
}
