package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ats-screening-go/internal/types"
)

func TestRankerRank(t *testing.T) {
	r := NewRanker(60)

	tests := []struct {
		name      string
		successes []types.CandidateResult
		wantOrder []string // 期望的ResumeID顺序
	}{
		{
			name:      "空输入",
			successes: nil,
			wantOrder: []string{},
		},
		{
			name: "按分数降序",
			successes: []types.CandidateResult{
				{ResumeID: "a", CandidateName: "Alice", MatchScore: 70},
				{ResumeID: "b", CandidateName: "Bob", MatchScore: 90},
				{ResumeID: "c", CandidateName: "Carol", MatchScore: 80},
			},
			wantOrder: []string{"b", "c", "a"},
		},
		{
			name: "平分时按姓名升序且大小写不敏感",
			successes: []types.CandidateResult{
				{ResumeID: "a", CandidateName: "bob", MatchScore: 80},
				{ResumeID: "b", CandidateName: "Alice", MatchScore: 80},
			},
			wantOrder: []string{"b", "a"},
		},
		{
			name: "分数姓名都相同时保持输入顺序",
			successes: []types.CandidateResult{
				{ResumeID: "first", CandidateName: "Same", MatchScore: 75},
				{ResumeID: "second", CandidateName: "same", MatchScore: 75},
			},
			wantOrder: []string{"first", "second"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := r.Rank(tt.successes)
			assert.Len(t, ranked, len(tt.wantOrder))
			for i, wantID := range tt.wantOrder {
				assert.Equal(t, wantID, ranked[i].ResumeID)
				assert.Equal(t, i+1, ranked[i].OverallRank, "名次必须为1..N连续")
			}
		})
	}
}

func TestRankerRankDoesNotMutateInput(t *testing.T) {
	r := NewRanker(60)
	input := []types.CandidateResult{
		{ResumeID: "a", CandidateName: "A", MatchScore: 10},
		{ResumeID: "b", CandidateName: "B", MatchScore: 90},
	}

	r.Rank(input)

	assert.Equal(t, "a", input[0].ResumeID)
	assert.Equal(t, 0, input[0].OverallRank)
}

func TestRankerAggregate(t *testing.T) {
	r := NewRanker(60)

	tests := []struct {
		name             string
		ranked           []types.CandidateResult
		failedCandidates int
		want             types.RunStatistics
	}{
		{
			name:             "空结果集统计全为0",
			ranked:           nil,
			failedCandidates: 0,
			want:             types.RunStatistics{},
		},
		{
			name: "常规聚合",
			ranked: []types.CandidateResult{
				{MatchScore: 90},
				{MatchScore: 60},
				{MatchScore: 40},
			},
			failedCandidates: 1,
			want: types.RunStatistics{
				TotalCandidates:     3,
				QualifiedCandidates: 2,  // 90和60达到阈值
				AverageScore:        63, // round(190/3)=round(63.33)
				TopScore:            90,
				FailedCandidates:    1,
			},
		},
		{
			name: "平均分四舍五入",
			ranked: []types.CandidateResult{
				{MatchScore: 70},
				{MatchScore: 71},
			},
			failedCandidates: 0,
			want: types.RunStatistics{
				TotalCandidates:     2,
				QualifiedCandidates: 2,
				AverageScore:        71, // round(70.5)
				TopScore:            71,
			},
		},
		{
			name:             "全部失败时仅记失败数",
			ranked:           []types.CandidateResult{},
			failedCandidates: 5,
			want:             types.RunStatistics{FailedCandidates: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Aggregate(tt.ranked, tt.failedCandidates)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankerCustomThreshold(t *testing.T) {
	r := NewRanker(80)

	stats := r.Aggregate([]types.CandidateResult{
		{MatchScore: 85},
		{MatchScore: 79},
	}, 0)

	assert.Equal(t, 1, stats.QualifiedCandidates)

	// 非法阈值回退到默认值60
	fallback := NewRanker(0)
	stats = fallback.Aggregate([]types.CandidateResult{{MatchScore: 60}}, 0)
	assert.Equal(t, 1, stats.QualifiedCandidates)
}
