package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-screening-go/internal/api/handler"
	"ats-screening-go/internal/config"
	"ats-screening-go/internal/constants"
	"ats-screening-go/internal/storage"
)

// newValidationTestEngine 构建只注册创建接口的测试引擎
// 这里只覆盖不触达存储层的入参校验路径，完整链路测试依赖真实中间件环境
func newValidationTestEngine(t *testing.T) *server.Hertz {
	t.Helper()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	h := handler.NewScreeningHandler(cfg, &storage.Storage{}, nil)

	engine := server.New()
	engine.POST("/api/v1/screenings", h.HandleCreateScreeningRun)
	return engine
}

func performCreate(engine *server.Hertz, body string) *ut.ResponseRecorder {
	buf := bytes.NewBufferString(body)
	return ut.PerformRequest(engine.Engine, "POST", "/api/v1/screenings",
		&ut.Body{Body: buf, Len: buf.Len()},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
}

func TestHandleCreateScreeningRunRejectsInvalidJSON(t *testing.T) {
	engine := newValidationTestEngine(t)

	resp := performCreate(engine, "{not-json")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandleCreateScreeningRunRejectsMissingFields(t *testing.T) {
	engine := newValidationTestEngine(t)

	tests := []struct {
		name string
		body string
	}{
		{"缺少职位名称", `{"job_requirement":{"required_skills":["go"]}}`},
		{"缺少职位要求", `{"job_title":"后端工程师"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := performCreate(engine, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestHandleGetRunArchiveRejectsEmptyRunID(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	h := handler.NewScreeningHandler(cfg, &storage.Storage{}, nil)

	// 注册在无参数路由上以命中 run_id 为空的校验分支
	engine := server.New()
	engine.GET("/archive", h.HandleGetRunArchive)

	resp := ut.PerformRequest(engine.Engine, "GET", "/archive", nil)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandleCreateScreeningRunRejectsInvalidJobRequirement(t *testing.T) {
	engine := newValidationTestEngine(t)

	tests := []struct {
		name string
		body string
	}{
		{
			"必备技能为空",
			`{"job_title":"后端工程师","job_requirement":{"required_skills":[]}}`,
		},
		{
			"经验区间倒置",
			`{"job_title":"后端工程师","job_requirement":{"required_skills":["go"],"experience":{"min":5,"max":2}}}`,
		},
		{
			"学历枚举非法",
			`{"job_title":"后端工程师","job_requirement":{"required_skills":["go"],"education_level":"diploma"}}`,
		},
		{
			"优先级越界",
			`{"job_title":"后端工程师","job_requirement":{"required_skills":["go"],"priority":9}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := performCreate(engine, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.Code)

			var errResp map[string]string
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
			assert.Equal(t, constants.FailureReasonInvalidJob, errResp["reason"])
		})
	}
}
