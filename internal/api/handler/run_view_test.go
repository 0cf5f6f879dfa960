package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"ats-screening-go/internal/constants"
	"ats-screening-go/internal/storage/models"
)

// 响应体头部必须完全由运行记录决定，与结果页的来源（缓存或数据库）无关
func TestRunRowViewCompleted(t *testing.T) {
	row := &models.ScreeningRun{
		RunUUID:             "run-1",
		JobTitle:            "后端工程师",
		ProcessingStatus:    constants.RunStatusCompleted,
		FailuresJSON:        datatypes.JSON(`[{"candidate_id":"c2","reason":"候选人技能字段缺失"}]`),
		TotalCandidates:     2,
		QualifiedCandidates: 1,
		AverageScore:        70,
		TopScore:            90,
		FailedCandidates:    1,
	}

	view := runRowView(row)

	assert.Equal(t, "run-1", view.RunUUID)
	assert.Equal(t, "后端工程师", view.JobTitle)
	assert.Equal(t, constants.RunStatusCompleted, view.Status)
	require.NotNil(t, view.Statistics)
	assert.Equal(t, 2, view.Statistics.TotalCandidates)
	assert.Equal(t, 90, view.Statistics.TopScore)
	assert.Equal(t, 1, view.Statistics.FailedCandidates)
	require.Len(t, view.Failures, 1)
	assert.Equal(t, "c2", view.Failures[0].CandidateID)
}

func TestRunRowViewFailed(t *testing.T) {
	row := &models.ScreeningRun{
		RunUUID:          "run-2",
		ProcessingStatus: constants.RunStatusFailed,
		FailureReason:    constants.FailureReasonAllCandidatesFailed,
		FailuresJSON:     datatypes.JSON(`[{"candidate_id":"c1","reason":"x"},{"candidate_id":"c2","reason":"y"}]`),
	}

	view := runRowView(row)

	assert.Equal(t, constants.FailureReasonAllCandidatesFailed, view.FailureReason)
	assert.Nil(t, view.Statistics, "FAILED运行没有统计")
	assert.Len(t, view.Failures, 2)
}

func TestRunRowViewNonTerminal(t *testing.T) {
	row := &models.ScreeningRun{
		RunUUID:          "run-3",
		ProcessingStatus: constants.RunStatusProcessing,
		// 即使行里残留统计值，非终态也不对外暴露
		TotalCandidates: 5,
	}

	view := runRowView(row)

	assert.Equal(t, constants.RunStatusProcessing, view.Status)
	assert.Nil(t, view.Statistics)
	assert.Empty(t, view.Failures)
	assert.Empty(t, view.Results)
}
