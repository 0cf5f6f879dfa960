package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ats-screening-go/internal/config"
	"ats-screening-go/internal/constants"
	"ats-screening-go/internal/engine"
	"ats-screening-go/internal/logger"
	"ats-screening-go/internal/storage"
	"ats-screening-go/internal/types"
)

// cancelPollInterval 消费者侧轮询Redis取消标记的间隔
const cancelPollInterval = time.Second

// CandidatePoolSnapshot 候选人池快照，创建运行时序列化后存入MinIO，
// 消费者侧取回后驱动引擎评估
type CandidatePoolSnapshot struct {
	Job         *types.JobRequirement    `json:"job"`
	Candidates  []types.CandidateProfile `json:"candidates"`
	PreFailures []types.CandidateFailure `json:"pre_failures,omitempty"`
}

// Service 筛选服务，消费运行请求消息并驱动评分引擎
type Service struct {
	cfg     *config.Config
	storage *storage.Storage
	engine  *engine.Engine
	tracer  trace.Tracer
}

// NewService 创建筛选服务，引擎参数取自配置，状态迁移通过观察者落盘
func NewService(cfg *config.Config, storageManager *storage.Storage) *Service {
	s := &Service{
		cfg:     cfg,
		storage: storageManager,
		tracer:  otel.Tracer("ats-screening-go/screening/service"),
	}
	s.engine = engine.NewEngine(
		engine.WithQualifyingThreshold(cfg.Engine.QualifyingThreshold),
		engine.WithConcurrencyLimit(cfg.Engine.ConcurrencyLimit),
		engine.WithLocationBonusCap(cfg.Engine.LocationBonusCap),
		engine.WithObserver(newPersistingObserver(cfg, storageManager)),
	)
	return s
}

// Engine 返回底层评分引擎，查询与取消接口直接使用
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// StartRunConsumer 启动运行请求消费者
func (s *Service) StartRunConsumer(ctx context.Context, prefetchCount int) error {
	logger.Info().
		Str("exchange", s.cfg.RabbitMQ.ScreeningEventsExchange).
		Str("routing_key", s.cfg.RabbitMQ.RunRequestedRoutingKey).
		Msg("初始化RabbitMQ配置")

	// 1. 确保交换机和队列存在
	if err := s.storage.RabbitMQ.EnsureExchange(s.cfg.RabbitMQ.ScreeningEventsExchange, "topic", true); err != nil {
		return fmt.Errorf("确保交换机存在失败: %w", err)
	}

	if err := s.storage.RabbitMQ.EnsureQueue(s.cfg.RabbitMQ.ScreeningRunQueue, true); err != nil {
		return fmt.Errorf("确保队列存在失败: %w", err)
	}

	if err := s.storage.RabbitMQ.BindQueue(
		s.cfg.RabbitMQ.ScreeningRunQueue,
		s.cfg.RabbitMQ.ScreeningEventsExchange,
		s.cfg.RabbitMQ.RunRequestedRoutingKey,
	); err != nil {
		return fmt.Errorf("绑定队列失败: %w", err)
	}

	logger.Info().
		Str("queue", s.cfg.RabbitMQ.ScreeningRunQueue).
		Int("prefetch_count", prefetchCount).
		Msg("筛选运行消费者就绪")

	_, err := s.storage.RabbitMQ.StartConsumer(s.cfg.RabbitMQ.ScreeningRunQueue, prefetchCount, func(data []byte) bool {
		var message storage.RunRequestedMessage
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Error().Err(err).Msg("解析运行请求消息失败")
			return false
		}
		return s.processRunRequest(ctx, message)
	})

	if err != nil {
		return fmt.Errorf("启动消费者失败: %w", err)
	}

	return nil
}

// processRunRequest 处理单条运行请求：加载运行与候选人快照、驱动引擎评估、
// 等待终态。返回true表示消息可确认，false表示重新入队。
func (s *Service) processRunRequest(ctx context.Context, message storage.RunRequestedMessage) bool {
	ctx, span := s.tracer.Start(ctx, "screening.ProcessRunRequest",
		trace.WithAttributes(
			attribute.String("screening.run_uuid", message.RunUUID),
			attribute.String("screening.triggered_by", message.TriggeredBy),
		))
	defer span.End()

	runRow, err := s.storage.MySQL.GetScreeningRun(ctx, message.RunUUID)
	if err != nil {
		if errors.Is(err, storage.ErrRunRecordNotFound) {
			// 记录已不存在，消息无法再处理，直接丢弃
			logger.Warn().Str("run_uuid", message.RunUUID).Msg("运行记录不存在，丢弃消息")
			return true
		}
		logger.Error().Err(err).Str("run_uuid", message.RunUUID).Msg("查询运行记录失败")
		return false
	}

	// 只有PENDING的运行才能开始评估；其他状态说明消息重复或已被并发实例处理
	if runRow.ProcessingStatus != constants.RunStatusPending {
		logger.Info().
			Str("run_uuid", message.RunUUID).
			Str("status", runRow.ProcessingStatus).
			Msg("运行不在PENDING状态，跳过")
		return true
	}

	poolKey := runRow.CandidatePoolKey
	if poolKey == "" {
		poolKey = message.CandidatePoolKey
	}

	snapshot, err := s.loadCandidatePool(ctx, poolKey)
	if err != nil {
		logger.Error().Err(err).Str("run_uuid", message.RunUUID).Str("pool_key", poolKey).Msg("加载候选人快照失败")
		if errors.Is(err, engine.ErrCandidateSourceUnavailable) {
			s.persistImmediateFailure(ctx, message.RunUUID, constants.FailureReasonSourceUnavailable)
			return true
		}
		return false
	}

	run, err := s.launchRun(ctx, message.RunUUID, snapshot)
	if err != nil {
		if engine.IsValidationError(err) {
			logger.Error().Err(err).Str("run_uuid", message.RunUUID).Msg("职位要求非法，运行直接失败")
			s.persistImmediateFailure(ctx, message.RunUUID, constants.FailureReasonInvalidJob)
			return true
		}
		logger.Error().Err(err).Str("run_uuid", message.RunUUID).Msg("启动运行失败")
		return false
	}
	if run == nil {
		// 引擎内已有同ID运行在途，等它自己走完
		return true
	}

	// 桥接Redis取消标记到引擎
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go s.watchCancelFlag(watchCtx, run)

	if _, err := run.Wait(ctx); err != nil {
		// 服务停机导致的等待中断，消息重新入队，下个实例会跳过非PENDING状态
		logger.Warn().Err(err).Str("run_uuid", message.RunUUID).Msg("等待运行结束被中断")
		return false
	}

	// 终态已由观察者落盘，运行无需继续驻留内存；重跑会从快照重建
	if err := s.engine.ReleaseRun(run.ID()); err != nil && !errors.Is(err, engine.ErrRunNotFound) {
		logger.Warn().Err(err).Str("run_uuid", message.RunUUID).Msg("释放终态运行失败")
	}

	return true
}

// loadCandidatePool 从MinIO取回并反序列化候选人快照
// 任何取回失败都归类为候选人数据源不可用
func (s *Service) loadCandidatePool(ctx context.Context, objectKey string) (*CandidatePoolSnapshot, error) {
	if objectKey == "" {
		return nil, fmt.Errorf("%w: 候选人快照路径为空", engine.ErrCandidateSourceUnavailable)
	}

	data, err := s.storage.MinIO.GetCandidatePool(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrCandidateSourceUnavailable, err)
	}

	var snapshot CandidatePoolSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: 反序列化候选人快照失败: %v", engine.ErrCandidateSourceUnavailable, err)
	}
	return &snapshot, nil
}

// launchRun 在引擎中启动或重跑运行。返回(nil, nil)表示同ID运行在途。
func (s *Service) launchRun(ctx context.Context, runUUID string, snapshot *CandidatePoolSnapshot) (*engine.Run, error) {
	if existing, err := s.engine.GetRun(runUUID); err == nil {
		snap := existing.Snapshot()
		if !snap.IsTerminal() {
			logger.Info().Str("run_uuid", runUUID).Str("status", snap.Status).Msg("同ID运行仍在引擎中执行")
			return nil, nil
		}
		// 终态运行重跑，引擎原子重置后重新评估
		if err := s.engine.Rerun(ctx, runUUID); err != nil {
			return nil, err
		}
		return existing, nil
	}

	return s.engine.StartRun(ctx, snapshot.Job, snapshot.Candidates, &engine.StartOptions{
		RunID:       runUUID,
		PreFailures: snapshot.PreFailures,
	})
}

// watchCancelFlag 轮询Redis取消标记，命中后向引擎发出取消请求。
// 取消接口可能由另一个服务实例处理，标记是跨实例的传播通道。
func (s *Service) watchCancelFlag(ctx context.Context, run *engine.Run) {
	if s.storage.Redis == nil {
		return
	}

	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()

	for {
		cancelled, err := s.storage.Redis.IsRunCancelRequested(ctx, run.ID())
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Str("run_uuid", run.ID()).Msg("查询取消标记失败")
		}
		if cancelled {
			if err := s.engine.CancelRun(run.ID()); err != nil && !errors.Is(err, engine.ErrRunAlreadyTerminal) {
				logger.Warn().Err(err).Str("run_uuid", run.ID()).Msg("取消运行失败")
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// persistImmediateFailure 运行未进入评估即失败时，直接落盘FAILED终态
func (s *Service) persistImmediateFailure(ctx context.Context, runUUID string, reason string) {
	if err := s.storage.MySQL.SaveRunOutcome(ctx, runUUID, constants.RunStatusFailed, reason, types.RunStatistics{}, nil, nil); err != nil {
		logger.Error().Err(err).Str("run_uuid", runUUID).Msg("落盘失败终态失败")
	}
	if s.storage.Redis != nil {
		if err := s.storage.Redis.SetRunStatus(ctx, runUUID, constants.RunStatusFailed); err != nil {
			logger.Warn().Err(err).Str("run_uuid", runUUID).Msg("写入运行状态缓存失败")
		}
	}
}
