package screening

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ats-screening-go/internal/config"
	"ats-screening-go/internal/constants"
	"ats-screening-go/internal/engine"
	"ats-screening-go/internal/logger"
	"ats-screening-go/internal/storage"
	"ats-screening-go/internal/tracing"
	"ats-screening-go/internal/types"
)

// persistingObserver 把引擎的运行状态迁移落到存储层：
// MySQL保存终态结果，Redis缓存状态与结果集，MinIO归档结果JSON，
// RabbitMQ广播运行完成事件。引擎本身不感知任何存储依赖。
type persistingObserver struct {
	cfg     *config.Config
	storage *storage.Storage
	tracer  trace.Tracer
}

func newPersistingObserver(cfg *config.Config, storage *storage.Storage) *persistingObserver {
	return &persistingObserver{
		cfg:     cfg,
		storage: storage,
		tracer:  otel.Tracer("ats-screening-go/screening/observer"),
	}
}

// OnRunTransition 处理一次状态迁移。观察者不能让持久化错误打断评估流程，
// 所有失败只记录日志。
func (o *persistingObserver) OnRunTransition(ctx context.Context, snap *engine.RunSnapshot) {
	if snap == nil {
		return
	}

	ctx, span := o.tracer.Start(ctx, "observer.OnRunTransition",
		trace.WithAttributes(
			attribute.String("screening.run_uuid", snap.RunID),
			attribute.String("screening.status", snap.Status),
		))
	defer span.End()

	// 状态缓存写Redis，供查询接口高频轮询
	if o.storage.Redis != nil {
		if err := o.storage.Redis.SetRunStatus(ctx, snap.RunID, snap.Status); err != nil {
			logger.Warn().Err(err).Str("run_uuid", snap.RunID).Msg("写入运行状态缓存失败")
		}
	}

	if !snap.IsTerminal() {
		if o.storage.MySQL != nil {
			if err := o.storage.MySQL.UpdateRunStatus(ctx, snap.RunID, snap.Status, ""); err != nil {
				logger.Warn().Err(err).Str("run_uuid", snap.RunID).Str("status", snap.Status).Msg("更新运行状态失败")
			}
		}
		return
	}

	o.persistTerminal(ctx, span, snap)
}

// persistTerminal 落盘终态：结果行、统计、失败列表、缓存与归档
func (o *persistingObserver) persistTerminal(ctx context.Context, span trace.Span, snap *engine.RunSnapshot) {
	var stats types.RunStatistics
	if snap.Statistics != nil {
		stats = *snap.Statistics
	}

	if snap.Status == constants.RunStatusFailed {
		tracing.RecordRunFailure(span, snap.RunID, snap.FailureReason)
	}

	if o.storage.MySQL != nil {
		if err := o.storage.MySQL.SaveRunOutcome(ctx, snap.RunID, snap.Status, snap.FailureReason, stats, snap.Results, snap.Failures); err != nil {
			logger.Error().Err(err).Str("run_uuid", snap.RunID).Msg("保存运行终态失败")
		}
	}

	if o.storage.Redis != nil && len(snap.Results) > 0 {
		if err := o.storage.Redis.CacheRunResults(ctx, snap.RunID, snap.Results, constants.RunResultCacheDuration); err != nil {
			logger.Warn().Err(err).Str("run_uuid", snap.RunID).Msg("缓存运行结果失败")
		}
	}

	// 归档完整结果JSON到MinIO，便于审计与下载
	archivePath := o.archiveResult(ctx, snap)

	// 广播完成事件，下游系统（通知、报表）订阅消费
	if o.storage.RabbitMQ != nil {
		msg := storage.RunCompletedMessage{
			EventID:          uuid.NewString(),
			RunUUID:          snap.RunID,
			ProcessingStatus: snap.Status,
			FailureReason:    snap.FailureReason,
			TotalCandidates:  stats.TotalCandidates,
			TopScore:         stats.TopScore,
			ArchivePathOSS:   archivePath,
			CompletedAt:      time.Now().Unix(),
		}
		err := o.storage.RabbitMQ.PublishJSON(ctx,
			o.cfg.RabbitMQ.ScreeningEventsExchange,
			o.cfg.RabbitMQ.RunCompletedRoutingKey,
			msg, true)
		if err != nil {
			logger.Warn().Err(err).Str("run_uuid", snap.RunID).Msg("发布运行完成事件失败")
		}
	}
}

// archiveResult 把终态快照JSON归档到MinIO并回写路径，返回归档对象键
func (o *persistingObserver) archiveResult(ctx context.Context, snap *engine.RunSnapshot) string {
	if o.storage.MinIO == nil {
		return ""
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		logger.Error().Err(err).Str("run_uuid", snap.RunID).Msg("序列化运行快照失败")
		return ""
	}

	objectKey, md5Hex, err := o.storage.MinIO.ArchiveRunResult(ctx, snap.RunID, payload)
	if err != nil {
		logger.Warn().Err(err).Str("run_uuid", snap.RunID).Msg("归档运行结果到MinIO失败")
		return ""
	}

	logger.Debug().
		Str("run_uuid", snap.RunID).
		Str("object_key", objectKey).
		Str("md5", md5Hex).
		Msg("运行结果已归档")

	if o.storage.MySQL != nil {
		if err := o.storage.MySQL.UpdateRunArchivePath(ctx, snap.RunID, objectKey); err != nil {
			logger.Warn().Err(err).Str("run_uuid", snap.RunID).Msg("回写归档路径失败")
		}
	}
	return objectKey
}
