package engine

import (
	"math"
	"sort"
	"strings"

	"ats-screening-go/internal/types"
)

// Ranker 排序与聚合器：批量评估的join屏障之后的单线程步骤，
// 其输出是运行结果的最终权威形态
type Ranker struct {
	qualifyingThreshold int
}

// NewRanker 创建排序聚合器，threshold<=0时使用默认合格阈值
func NewRanker(qualifyingThreshold int) *Ranker {
	if qualifyingThreshold <= 0 {
		qualifyingThreshold = 60
	}
	return &Ranker{qualifyingThreshold: qualifyingThreshold}
}

// Rank 按匹配分降序排序并分配1..N的名次
// 平分时按候选人姓名升序（大小写不敏感），再按原始输入顺序保持稳定，
// 因此结果与worker完成顺序无关，相同输入下可复现
func (r *Ranker) Rank(successes []types.CandidateResult) []types.CandidateResult {
	ranked := make([]types.CandidateResult, len(successes))
	copy(ranked, successes)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].MatchScore != ranked[j].MatchScore {
			return ranked[i].MatchScore > ranked[j].MatchScore
		}
		nameI := strings.ToLower(ranked[i].CandidateName)
		nameJ := strings.ToLower(ranked[j].CandidateName)
		if nameI != nameJ {
			return nameI < nameJ
		}
		// 完全平局时SliceStable保持输入顺序
		return false
	})

	for i := range ranked {
		ranked[i].OverallRank = i + 1
	}
	return ranked
}

// Aggregate 计算运行级统计
// totalCandidates = 成功评分数N；averageScore为四舍五入的算术平均；
// topScore为最高分，N=0时统计全为0
func (r *Ranker) Aggregate(ranked []types.CandidateResult, failedCandidates int) types.RunStatistics {
	stats := types.RunStatistics{
		TotalCandidates:  len(ranked),
		FailedCandidates: failedCandidates,
	}
	if len(ranked) == 0 {
		return stats
	}

	sum := 0
	top := 0
	qualified := 0
	for _, result := range ranked {
		sum += result.MatchScore
		if result.MatchScore > top {
			top = result.MatchScore
		}
		if result.MatchScore >= r.qualifyingThreshold {
			qualified++
		}
	}

	stats.QualifiedCandidates = qualified
	stats.AverageScore = int(math.Round(float64(sum) / float64(len(ranked))))
	stats.TopScore = top
	return stats
}
