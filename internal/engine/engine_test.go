package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-screening-go/internal/constants"
	"ats-screening-go/internal/scorer"
	"ats-screening-go/internal/types"
)

// MockRunObserver 模拟运行观察者，记录收到的全部状态流转
type MockRunObserver struct {
	mu        sync.Mutex
	snapshots []*RunSnapshot
}

func (m *MockRunObserver) OnRunTransition(_ context.Context, snapshot *RunSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
}

func (m *MockRunObserver) Statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := make([]string, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		statuses = append(statuses, snap.Status)
	}
	return statuses
}

func validJob() *types.JobRequirement {
	return &types.JobRequirement{
		Title:          "后端工程师",
		RequiredSkills: []string{"python", "sql"},
		Experience:     types.ExperienceRange{Min: 2, Max: 5},
	}
}

func waitTerminal(t *testing.T, run *Run) *RunSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := run.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestStartRunValidationFastFail(t *testing.T) {
	e := NewEngine()

	lowMin := 10
	highMax := 5

	tests := []struct {
		name string
		job  *types.JobRequirement
	}{
		{"岗位要求为空", nil},
		{"必备技能为空", &types.JobRequirement{RequiredSkills: []string{" ", ""}}},
		{
			"经验下限大于上限",
			&types.JobRequirement{
				RequiredSkills: []string{"go"},
				Experience:     types.ExperienceRange{Min: 5, Max: 2},
			},
		},
		{
			"经验为负数",
			&types.JobRequirement{
				RequiredSkills: []string{"go"},
				Experience:     types.ExperienceRange{Min: -1, Max: 2},
			},
		},
		{
			"薪资下限大于上限",
			&types.JobRequirement{
				RequiredSkills: []string{"go"},
				Salary:         types.SalaryRange{Min: &lowMin, Max: &highMax},
			},
		},
		{
			"学历枚举非法",
			&types.JobRequirement{
				RequiredSkills: []string{"go"},
				EducationLevel: "diploma",
			},
		},
		{
			"优先级越界",
			&types.JobRequirement{
				RequiredSkills: []string{"go"},
				Priority:       6,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := e.StartRun(context.Background(), tt.job, nil, nil)
			assert.Nil(t, run)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestEngineCompletedRun(t *testing.T) {
	observer := &MockRunObserver{}
	e := NewEngine(WithObserver(observer))

	candidates := []types.CandidateProfile{
		{ID: "r1", Name: "Alice", Skills: []string{"python", "sql"}, YearsExperience: 3},
		{ID: "r2", Name: "Bob", Skills: []string{"python"}, YearsExperience: 1},
	}

	run, err := e.StartRun(context.Background(), validJob(), candidates, nil)
	require.NoError(t, err)

	snap := waitTerminal(t, run)

	assert.Equal(t, constants.RunStatusCompleted, snap.Status)
	assert.Empty(t, snap.FailureReason)
	assert.NoError(t, run.Err())
	require.Len(t, snap.Results, 2)
	assert.Equal(t, "r1", snap.Results[0].ResumeID)
	assert.Equal(t, 1, snap.Results[0].OverallRank)
	assert.Equal(t, 2, snap.Results[1].OverallRank)
	require.NotNil(t, snap.Statistics)
	assert.Equal(t, 2, snap.Statistics.TotalCandidates)
	assert.Equal(t, snap.Results[0].MatchScore, snap.Statistics.TopScore)

	// 观察者必须按序看到PENDING/PROCESSING/COMPLETED
	statuses := observer.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, constants.RunStatusPending, statuses[0])
	assert.Equal(t, constants.RunStatusProcessing, statuses[1])
	assert.Equal(t, constants.RunStatusCompleted, statuses[2])
}

func TestEngineEmptyPoolCompletes(t *testing.T) {
	e := NewEngine()

	run, err := e.StartRun(context.Background(), validJob(), nil, nil)
	require.NoError(t, err)

	snap := waitTerminal(t, run)

	assert.Equal(t, constants.RunStatusCompleted, snap.Status)
	assert.Empty(t, snap.Results)
	require.NotNil(t, snap.Statistics)
	assert.Equal(t, types.RunStatistics{}, *snap.Statistics)
}

func TestEngineAllCandidatesFailed(t *testing.T) {
	e := NewEngine()

	// 候选池全部缺少技能字段，逐个评分失败
	candidates := []types.CandidateProfile{
		{ID: "r1", Name: "Alice"},
		{ID: "r2", Name: "Bob"},
	}

	run, err := e.StartRun(context.Background(), validJob(), candidates, nil)
	require.NoError(t, err)

	snap := waitTerminal(t, run)

	assert.Equal(t, constants.RunStatusFailed, snap.Status)
	assert.Equal(t, constants.FailureReasonAllCandidatesFailed, snap.FailureReason)
	assert.Empty(t, snap.Results)
	assert.Len(t, snap.Failures, 2)

	// 失败终态携带可比较的类型化错误
	assert.ErrorIs(t, run.Err(), ErrAllCandidatesFailed)
	var runErr *RunFailureError
	require.ErrorAs(t, run.Err(), &runErr)
	assert.Equal(t, constants.FailureReasonAllCandidatesFailed, runErr.Reason)
}

func TestEnginePartialFailureStillCompletes(t *testing.T) {
	e := NewEngine()

	candidates := []types.CandidateProfile{
		{ID: "r1", Name: "Alice", Skills: []string{"python", "sql"}, YearsExperience: 3},
		{ID: "r2", Name: "Bob"}, // 缺少技能字段
		{ID: "r3", Name: "Carol", Skills: []string{"sql"}, YearsExperience: 4},
	}

	run, err := e.StartRun(context.Background(), validJob(), candidates, nil)
	require.NoError(t, err)

	snap := waitTerminal(t, run)

	assert.Equal(t, constants.RunStatusCompleted, snap.Status)
	assert.Len(t, snap.Results, 2)
	require.Len(t, snap.Failures, 1)
	assert.Equal(t, "r2", snap.Failures[0].CandidateID)
	assert.Equal(t, 2, snap.Statistics.TotalCandidates)
	assert.Equal(t, 1, snap.Statistics.FailedCandidates)
}

func TestEnginePreFailuresMerged(t *testing.T) {
	e := NewEngine()

	preFailures := []types.CandidateFailure{
		{CandidateID: "quarantined", Reason: "候选人画像缺少ID"},
	}
	candidates := []types.CandidateProfile{
		{ID: "r1", Name: "Alice", Skills: []string{"python", "sql"}, YearsExperience: 3},
	}

	run, err := e.StartRun(context.Background(), validJob(), candidates, &StartOptions{PreFailures: preFailures})
	require.NoError(t, err)

	snap := waitTerminal(t, run)

	assert.Equal(t, constants.RunStatusCompleted, snap.Status)
	require.Len(t, snap.Failures, 1)
	assert.Equal(t, "quarantined", snap.Failures[0].CandidateID)
	assert.Equal(t, 1, snap.Statistics.FailedCandidates)
}

func TestEngineDuplicateRunID(t *testing.T) {
	e := NewEngine()

	opts := &StartOptions{RunID: "fixed-id"}
	run, err := e.StartRun(context.Background(), validJob(), nil, opts)
	require.NoError(t, err)
	waitTerminal(t, run)

	_, err = e.StartRun(context.Background(), validJob(), nil, opts)
	assert.True(t, IsValidationError(err))
}

func TestEngineGetRunResult(t *testing.T) {
	e := NewEngine()

	_, err := e.GetRunResult("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	run, err := e.StartRun(context.Background(), validJob(), []types.CandidateProfile{
		{ID: "r1", Name: "Alice", Skills: []string{"python", "sql"}, YearsExperience: 3},
	}, &StartOptions{RunID: "run-1"})
	require.NoError(t, err)
	waitTerminal(t, run)

	snap, err := e.GetRunResult("run-1")
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusCompleted, snap.Status)
	assert.Len(t, snap.Results, 1)
}

func TestEngineCancelRun(t *testing.T) {
	// 用阻塞型mock评分器卡住在途评估，保证取消发生在处理过程中
	block := make(chan struct{})
	mock := &MockMatchScorer{
		ScoreFunc: func(ctx context.Context, _ *types.JobRequirement, candidate *types.CandidateProfile) (*scorer.ScoreBreakdown, error) {
			<-block
			return &scorer.ScoreBreakdown{MatchScore: 50}, nil
		},
	}
	e := NewEngine(WithMatchScorer(mock), WithConcurrencyLimit(1))

	candidates := make([]types.CandidateProfile, 10)
	for i := range candidates {
		candidates[i] = types.CandidateProfile{ID: "r" + string(rune('a'+i)), Skills: []string{"go"}}
	}

	run, err := e.StartRun(context.Background(), validJob(), candidates, &StartOptions{RunID: "cancel-me"})
	require.NoError(t, err)

	// 等评估进入PROCESSING后再取消
	require.Eventually(t, func() bool {
		snap, err := e.GetRunResult("cancel-me")
		return err == nil && snap.Status == constants.RunStatusProcessing
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.CancelRun("cancel-me"))
	close(block)

	snap := waitTerminal(t, run)

	assert.Equal(t, constants.RunStatusFailed, snap.Status)
	assert.Equal(t, constants.FailureReasonCancelled, snap.FailureReason)
	assert.Empty(t, snap.Results)
	assert.ErrorIs(t, run.Err(), ErrRunCancelled)

	// 终态运行的二次取消被拒绝
	assert.ErrorIs(t, e.CancelRun("cancel-me"), ErrRunAlreadyTerminal)
	assert.ErrorIs(t, e.CancelRun("missing"), ErrRunNotFound)
}

func TestEngineRerun(t *testing.T) {
	e := NewEngine()

	candidates := []types.CandidateProfile{
		{ID: "r1", Name: "Alice", Skills: []string{"python", "sql"}, YearsExperience: 3},
	}

	run, err := e.StartRun(context.Background(), validJob(), candidates, &StartOptions{RunID: "rerun-me"})
	require.NoError(t, err)
	first := waitTerminal(t, run)
	assert.Equal(t, constants.RunStatusCompleted, first.Status)

	require.NoError(t, e.Rerun(context.Background(), "rerun-me"))
	second := waitTerminal(t, run)

	assert.Equal(t, constants.RunStatusCompleted, second.Status)
	assert.Len(t, second.Results, 1)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))

	assert.ErrorIs(t, e.Rerun(context.Background(), "missing"), ErrRunNotFound)
}

func TestEngineReleaseRun(t *testing.T) {
	e := NewEngine()

	assert.ErrorIs(t, e.ReleaseRun("missing"), ErrRunNotFound)

	run, err := e.StartRun(context.Background(), validJob(), []types.CandidateProfile{
		{ID: "r1", Name: "Alice", Skills: []string{"python", "sql"}, YearsExperience: 3},
	}, &StartOptions{RunID: "release-me"})
	require.NoError(t, err)
	waitTerminal(t, run)

	require.NoError(t, e.ReleaseRun("release-me"))

	// 释放后引擎不再持有该运行
	_, err = e.GetRunResult("release-me")
	assert.ErrorIs(t, err, ErrRunNotFound)

	// 同ID可以重新启动，重跑路径从快照重建
	rebuilt, err := e.StartRun(context.Background(), validJob(), nil, &StartOptions{RunID: "release-me"})
	require.NoError(t, err)
	waitTerminal(t, rebuilt)
}

func TestEngineReleaseRunNonTerminalRejected(t *testing.T) {
	block := make(chan struct{})
	mock := &MockMatchScorer{
		ScoreFunc: func(ctx context.Context, _ *types.JobRequirement, candidate *types.CandidateProfile) (*scorer.ScoreBreakdown, error) {
			<-block
			return &scorer.ScoreBreakdown{MatchScore: 50}, nil
		},
	}
	e := NewEngine(WithMatchScorer(mock))

	run, err := e.StartRun(context.Background(), validJob(), []types.CandidateProfile{
		{ID: "r1", Skills: []string{"go"}},
	}, &StartOptions{RunID: "busy"})
	require.NoError(t, err)

	assert.ErrorIs(t, e.ReleaseRun("busy"), ErrRunNotTerminal)

	close(block)
	waitTerminal(t, run)
}

func TestEngineRerunNonTerminalRejected(t *testing.T) {
	block := make(chan struct{})
	mock := &MockMatchScorer{
		ScoreFunc: func(ctx context.Context, _ *types.JobRequirement, candidate *types.CandidateProfile) (*scorer.ScoreBreakdown, error) {
			<-block
			return &scorer.ScoreBreakdown{MatchScore: 50}, nil
		},
	}
	e := NewEngine(WithMatchScorer(mock))

	run, err := e.StartRun(context.Background(), validJob(), []types.CandidateProfile{
		{ID: "r1", Skills: []string{"go"}},
	}, &StartOptions{RunID: "in-flight"})
	require.NoError(t, err)

	assert.ErrorIs(t, e.Rerun(context.Background(), "in-flight"), ErrRunNotTerminal)

	close(block)
	waitTerminal(t, run)
}
