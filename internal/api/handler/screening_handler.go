package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	guuid "github.com/google/uuid"

	"ats-screening-go/internal/config"
	"ats-screening-go/internal/constants"
	"ats-screening-go/internal/engine"
	"ats-screening-go/internal/scorer"
	"ats-screening-go/internal/screening"
	"ats-screening-go/internal/storage"
	"ats-screening-go/internal/storage/models"
	"ats-screening-go/internal/types"
)

// rerunLockTTL 重跑锁的持有时长，防止并发重跑同一运行
const rerunLockTTL = time.Minute

// archiveURLExpiry 归档预签名URL的有效期
const archiveURLExpiry = time.Hour

// ScreeningHandler 筛选运行处理器，负责运行的创建、查询、取消与重跑
type ScreeningHandler struct {
	cfg      *config.Config
	storage  *storage.Storage
	service  *screening.Service
	validate *validator.Validate
	logger   *log.Logger
}

// NewScreeningHandler 创建一个新的筛选运行处理器
func NewScreeningHandler(cfg *config.Config, storageManager *storage.Storage, service *screening.Service) *ScreeningHandler {
	return &ScreeningHandler{
		cfg:      cfg,
		storage:  storageManager,
		service:  service,
		validate: validator.New(),
		logger:   log.New(os.Stdout, "[ScreeningHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// CreateScreeningRunRequest 创建筛选运行的请求体
type CreateScreeningRunRequest struct {
	JobTitle   string                   `json:"job_title" validate:"required,max=255"`
	Job        *types.JobRequirement    `json:"job_requirement" validate:"required"`
	Candidates []types.CandidateProfile `json:"candidates"`
}

// CreateScreeningRunResponse 创建筛选运行的响应体
type CreateScreeningRunResponse struct {
	RunUUID        string `json:"run_uuid"`
	Status         string `json:"status"`
	CandidateCount int    `json:"candidate_count"`
	RejectedCount  int    `json:"rejected_count"` // 入口校验即失败的候选人数
}

// screeningRunView 查询接口的响应体
type screeningRunView struct {
	RunUUID       string                   `json:"run_uuid"`
	JobTitle      string                   `json:"job_title"`
	Status        string                   `json:"status"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	Statistics    *types.RunStatistics     `json:"statistics,omitempty"`
	Results       []types.CandidateResult  `json:"results,omitempty"`
	Failures      []types.CandidateFailure `json:"failures,omitempty"`
	TotalCount    int64                    `json:"total_count,omitempty"`
	NextCursor    int                      `json:"next_cursor,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// HandleCreateScreeningRun 创建一次筛选运行
// POST /api/v1/screenings
func (h *ScreeningHandler) HandleCreateScreeningRun(ctx context.Context, c *app.RequestContext) {
	var req CreateScreeningRunRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体不是合法JSON"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// 职位要求非法时整个请求快速失败
	if err := engine.ValidateJobRequirement(req.Job); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{
			"error":  err.Error(),
			"reason": constants.FailureReasonInvalidJob,
		})
		return
	}

	// 入口校验：画像不合法的候选人被隔离成失败记录，不拖垮整个运行
	validCandidates := make([]types.CandidateProfile, 0, len(req.Candidates))
	var preFailures []types.CandidateFailure
	for i := range req.Candidates {
		cand := req.Candidates[i]
		if err := scorer.ValidateProfile(&cand); err != nil {
			candidateID := cand.ID
			if candidateID == "" {
				candidateID = fmt.Sprintf("candidate[%d]", i)
			}
			preFailures = append(preFailures, types.CandidateFailure{
				CandidateID: candidateID,
				Reason:      err.Error(),
			})
			continue
		}
		validCandidates = append(validCandidates, cand)
	}

	uuidV7, err := uuid.NewV7()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "生成运行UUID失败"})
		return
	}
	runUUID := uuidV7.String()

	// 候选人快照先落MinIO，数据库只存对象路径
	snapshot := screening.CandidatePoolSnapshot{
		Job:         req.Job,
		Candidates:  validCandidates,
		PreFailures: preFailures,
	}
	snapshotJSON, err := json.Marshal(&snapshot)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "序列化候选人快照失败"})
		return
	}
	poolKey, err := h.storage.MinIO.UploadCandidatePool(ctx, runUUID, snapshotJSON)
	if err != nil {
		h.logger.Printf("上传候选人快照失败 run=%s: %v", runUUID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "保存候选人快照失败"})
		return
	}

	jobJSON, err := models.MapToJSON(req.Job)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "序列化职位要求失败"})
		return
	}

	runRow := &models.ScreeningRun{
		RunUUID:            runUUID,
		JobTitle:           req.JobTitle,
		JobRequirementJSON: jobJSON,
		CandidatePoolKey:   poolKey,
		CandidateCount:     len(req.Candidates),
		ProcessingStatus:   constants.RunStatusPending,
	}

	outboxMsg, err := h.buildRunRequestedOutbox(runUUID, poolKey, len(req.Candidates), "create", h.hrID(c))
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "构建运行请求消息失败"})
		return
	}

	// 运行记录与outbox消息同事务写入，由中继服务保证消息送达
	if err := h.storage.MySQL.CreateScreeningRun(ctx, runRow, outboxMsg); err != nil {
		h.logger.Printf("创建筛选运行失败 run=%s: %v", runUUID, err)
		// 事务失败后快照成了孤儿对象，尽力清理
		if delErr := h.storage.MinIO.DeleteCandidatePool(ctx, poolKey); delErr != nil {
			h.logger.Printf("清理孤儿快照失败 run=%s key=%s: %v", runUUID, poolKey, delErr)
		}
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "创建筛选运行失败"})
		return
	}

	if h.storage.Redis != nil {
		if err := h.storage.Redis.SetRunStatus(ctx, runUUID, constants.RunStatusPending); err != nil {
			h.logger.Printf("写入运行状态缓存失败 run=%s: %v", runUUID, err)
		}
	}

	c.JSON(consts.StatusAccepted, &CreateScreeningRunResponse{
		RunUUID:        runUUID,
		Status:         constants.RunStatusPending,
		CandidateCount: len(req.Candidates),
		RejectedCount:  len(preFailures),
	})
}

// HandleGetScreeningRun 查询运行状态与结果
// GET /api/v1/screenings/:run_id
func (h *ScreeningHandler) HandleGetScreeningRun(ctx context.Context, c *app.RequestContext) {
	runUUID := c.Param("run_id")
	if runUUID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "run_id 不能为空"})
		return
	}

	limit, cursor := paginationParams(c)

	// 头部字段（状态、统计、失败列表）永远来自运行记录，
	// 结果页的来源不影响响应体形状
	runRow, err := h.storage.MySQL.GetScreeningRun(ctx, runUUID)
	if err != nil {
		if errors.Is(err, storage.ErrRunRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "筛选运行不存在"})
			return
		}
		h.logger.Printf("查询筛选运行失败 run=%s: %v", runUUID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询筛选运行失败"})
		return
	}

	view := runRowView(runRow)

	// 非终态只返回状态，结果半成品不可见
	if runRow.ProcessingStatus != constants.RunStatusCompleted && runRow.ProcessingStatus != constants.RunStatusFailed {
		c.JSON(consts.StatusOK, view)
		return
	}

	if runRow.ProcessingStatus == constants.RunStatusCompleted {
		// 结果页优先走Redis缓存，重跑后的缓存由CacheRunResults整体覆盖
		if h.storage.Redis != nil {
			results, totalCount, cacheErr := h.storage.Redis.GetCachedRunResults(ctx, runUUID, int64(cursor), int64(limit))
			if cacheErr == nil && len(results) > 0 {
				view.Results = results
				view.TotalCount = totalCount
				view.NextCursor = cursor + len(results)
				c.JSON(consts.StatusOK, view)
				return
			}
		}

		records, err := h.storage.MySQL.GetRunResults(ctx, runUUID)
		if err != nil {
			h.logger.Printf("查询运行结果失败 run=%s: %v", runUUID, err)
			c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询运行结果失败"})
			return
		}
		view.TotalCount = int64(len(records))

		// MySQL兜底路径同样按cursor/limit切片，与缓存路径行为一致
		if cursor < len(records) {
			end := cursor + limit
			if end > len(records) {
				end = len(records)
			}
			for _, rec := range records[cursor:end] {
				view.Results = append(view.Results, types.CandidateResult{
					ResumeID:        rec.ResumeID,
					CandidateName:   rec.CandidateName,
					MatchScore:      rec.MatchScore,
					SkillsMatch:     rec.SkillsMatch,
					ExperienceMatch: rec.ExperienceMatch,
					EducationMatch:  rec.EducationMatch,
					OverallRank:     rec.OverallRank,
				})
			}
			view.NextCursor = cursor + len(view.Results)
		}
	}

	c.JSON(consts.StatusOK, view)
}

// runRowView 从运行记录组装响应体头部，结果页由调用方按来源填充
func runRowView(runRow *models.ScreeningRun) *screeningRunView {
	view := &screeningRunView{
		RunUUID:       runRow.RunUUID,
		JobTitle:      runRow.JobTitle,
		Status:        runRow.ProcessingStatus,
		FailureReason: runRow.FailureReason,
		CreatedAt:     runRow.CreatedAt,
		UpdatedAt:     runRow.UpdatedAt,
	}

	if runRow.ProcessingStatus != constants.RunStatusCompleted && runRow.ProcessingStatus != constants.RunStatusFailed {
		return view
	}

	if len(runRow.FailuresJSON) > 0 {
		if err := json.Unmarshal(runRow.FailuresJSON, &view.Failures); err != nil {
			view.Failures = nil
		}
	}

	if runRow.ProcessingStatus == constants.RunStatusCompleted {
		view.Statistics = &types.RunStatistics{
			TotalCandidates:     runRow.TotalCandidates,
			QualifiedCandidates: runRow.QualifiedCandidates,
			AverageScore:        runRow.AverageScore,
			TopScore:            runRow.TopScore,
			FailedCandidates:    runRow.FailedCandidates,
		}
	}

	return view
}

// HandleCancelScreeningRun 请求取消一次运行
// POST /api/v1/screenings/:run_id/cancel
func (h *ScreeningHandler) HandleCancelScreeningRun(ctx context.Context, c *app.RequestContext) {
	runUUID := c.Param("run_id")
	if runUUID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "run_id 不能为空"})
		return
	}

	runRow, err := h.storage.MySQL.GetScreeningRun(ctx, runUUID)
	if err != nil {
		if errors.Is(err, storage.ErrRunRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "筛选运行不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询筛选运行失败"})
		return
	}

	// 终态运行不可取消
	if runRow.ProcessingStatus == constants.RunStatusCompleted || runRow.ProcessingStatus == constants.RunStatusFailed {
		c.JSON(consts.StatusConflict, map[string]string{"error": "运行已进入终态，无法取消"})
		return
	}

	if h.storage.Redis != nil {
		if err := h.storage.Redis.SetRunCancelFlag(ctx, runUUID); err != nil {
			h.logger.Printf("设置取消标记失败 run=%s: %v", runUUID, err)
			c.JSON(consts.StatusInternalServerError, map[string]string{"error": "设置取消标记失败"})
			return
		}
	}

	// 运行在本实例引擎中时直接取消，跨实例依赖Redis标记传播
	if h.service != nil {
		if err := h.service.Engine().CancelRun(runUUID); err != nil &&
			!errors.Is(err, engine.ErrRunNotFound) && !errors.Is(err, engine.ErrRunAlreadyTerminal) {
			h.logger.Printf("引擎内取消运行失败 run=%s: %v", runUUID, err)
		}
	}

	c.JSON(consts.StatusAccepted, map[string]string{
		"run_uuid": runUUID,
		"status":   "CANCEL_REQUESTED",
	})
}

// HandleRerunScreeningRun 重跑一次终态运行
// POST /api/v1/screenings/:run_id/rerun
func (h *ScreeningHandler) HandleRerunScreeningRun(ctx context.Context, c *app.RequestContext) {
	runUUID := c.Param("run_id")
	if runUUID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "run_id 不能为空"})
		return
	}

	// 分布式锁防止并发重跑同一运行
	lockKey := fmt.Sprintf(constants.KeyRerunLock, runUUID)
	var lockValue string
	if h.storage.Redis != nil {
		var err error
		lockValue, err = h.storage.Redis.AcquireLock(ctx, lockKey, rerunLockTTL)
		if err != nil {
			h.logger.Printf("获取重跑锁失败 run=%s: %v，继续执行可能导致重复重跑", runUUID, err)
		} else if lockValue == "" {
			c.JSON(consts.StatusConflict, map[string]string{"error": "该运行的重跑请求正在处理中"})
			return
		}
		if lockValue != "" {
			defer func() {
				if _, err := h.storage.Redis.ReleaseLock(ctx, lockKey, lockValue); err != nil {
					h.logger.Printf("释放重跑锁失败 run=%s: %v", runUUID, err)
				}
			}()
		}
	}

	runRow, err := h.storage.MySQL.GetScreeningRun(ctx, runUUID)
	if err != nil {
		if errors.Is(err, storage.ErrRunRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "筛选运行不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询筛选运行失败"})
		return
	}

	// 只有终态运行可以重跑
	if runRow.ProcessingStatus != constants.RunStatusCompleted && runRow.ProcessingStatus != constants.RunStatusFailed {
		c.JSON(consts.StatusConflict, map[string]string{"error": "运行未进入终态，无法重跑"})
		return
	}

	outboxMsg, err := h.buildRunRequestedOutbox(runUUID, runRow.CandidatePoolKey, runRow.CandidateCount, "rerun", h.hrID(c))
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "构建运行请求消息失败"})
		return
	}

	// 重置与outbox消息同事务，WHERE状态条件保证只从终态重置
	if err := h.storage.MySQL.ResetRunForRerun(ctx, runUUID, outboxMsg); err != nil {
		if errors.Is(err, storage.ErrRunRecordNotFound) {
			c.JSON(consts.StatusConflict, map[string]string{"error": "运行状态已变化，无法重跑"})
			return
		}
		h.logger.Printf("重置筛选运行失败 run=%s: %v", runUUID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "重置筛选运行失败"})
		return
	}

	if h.storage.Redis != nil {
		if err := h.storage.Redis.ClearRunCancelFlag(ctx, runUUID); err != nil {
			h.logger.Printf("清除取消标记失败 run=%s: %v", runUUID, err)
		}
		if err := h.storage.Redis.SetRunStatus(ctx, runUUID, constants.RunStatusPending); err != nil {
			h.logger.Printf("写入运行状态缓存失败 run=%s: %v", runUUID, err)
		}
	}

	c.JSON(consts.StatusAccepted, map[string]string{
		"run_uuid": runUUID,
		"status":   constants.RunStatusPending,
	})
}

// HandleGetRunArchive 获取终态运行的结果归档
// GET /api/v1/screenings/:run_id/archive
// 默认返回预签名下载URL，携带 inline=1 时直接回传归档JSON
func (h *ScreeningHandler) HandleGetRunArchive(ctx context.Context, c *app.RequestContext) {
	runUUID := c.Param("run_id")
	if runUUID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "run_id 不能为空"})
		return
	}

	runRow, err := h.storage.MySQL.GetScreeningRun(ctx, runUUID)
	if err != nil {
		if errors.Is(err, storage.ErrRunRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "筛选运行不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询筛选运行失败"})
		return
	}

	if runRow.ArchivePathOSS == "" {
		c.JSON(consts.StatusNotFound, map[string]string{"error": "该运行没有结果归档"})
		return
	}

	if c.Query("inline") == "1" {
		data, err := h.storage.MinIO.GetRunArchive(ctx, runRow.ArchivePathOSS)
		if err != nil {
			h.logger.Printf("下载归档失败 run=%s key=%s: %v", runUUID, runRow.ArchivePathOSS, err)
			c.JSON(consts.StatusInternalServerError, map[string]string{"error": "下载结果归档失败"})
			return
		}
		c.Data(consts.StatusOK, "application/json", data)
		return
	}

	url, err := h.storage.MinIO.GetPresignedArchiveURL(ctx, runRow.ArchivePathOSS, archiveURLExpiry)
	if err != nil {
		h.logger.Printf("生成归档预签名URL失败 run=%s key=%s: %v", runUUID, runRow.ArchivePathOSS, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "生成归档下载链接失败"})
		return
	}

	c.JSON(consts.StatusOK, map[string]string{
		"run_uuid": runUUID,
		"url":      url,
	})
}

// HandleListScreeningRuns 按状态分页列出运行
// GET /api/v1/screenings
func (h *ScreeningHandler) HandleListScreeningRuns(ctx context.Context, c *app.RequestContext) {
	status := c.Query("status")
	limit, offset := paginationParams(c)

	runs, err := h.storage.MySQL.ListRunsByStatus(ctx, status, limit, offset)
	if err != nil {
		h.logger.Printf("列出筛选运行失败 status=%s: %v", status, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "列出筛选运行失败"})
		return
	}

	views := make([]screeningRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, screeningRunView{
			RunUUID:       run.RunUUID,
			JobTitle:      run.JobTitle,
			Status:        run.ProcessingStatus,
			FailureReason: run.FailureReason,
			CreatedAt:     run.CreatedAt,
			UpdatedAt:     run.UpdatedAt,
		})
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"data":        views,
		"next_cursor": offset + len(views),
	})
}

// buildRunRequestedOutbox 构建运行请求的outbox消息
func (h *ScreeningHandler) buildRunRequestedOutbox(runUUID, poolKey string, candidateCount int, triggeredBy, hrID string) (*models.OutboxMessage, error) {
	message := storage.RunRequestedMessage{
		EventID:          guuid.NewString(),
		RunUUID:          runUUID,
		RequestedAt:      time.Now(),
		CandidatePoolKey: poolKey,
		CandidateCount:   candidateCount,
		TriggeredBy:      triggeredBy,
		RequestingHRID:   hrID,
	}
	payload, err := json.Marshal(&message)
	if err != nil {
		return nil, fmt.Errorf("序列化运行请求消息失败: %w", err)
	}

	return &models.OutboxMessage{
		AggregateID:      runUUID,
		EventType:        "screening.run.requested",
		Payload:          string(payload),
		TargetExchange:   h.cfg.RabbitMQ.ScreeningEventsExchange,
		TargetRoutingKey: h.cfg.RabbitMQ.RunRequestedRoutingKey,
		Status:           "PENDING",
	}, nil
}

// hrID 从认证中间件取出hr_id，未启用认证时为空
func (h *ScreeningHandler) hrID(c *app.RequestContext) string {
	if v, exists := c.Get("hr_id"); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// paginationParams 解析limit/cursor查询参数
func paginationParams(c *app.RequestContext) (limit, cursor int) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	cursor, err = strconv.Atoi(c.Query("cursor"))
	if err != nil || cursor < 0 {
		cursor = 0
	}
	return limit, cursor
}
