package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ats-screening-go/internal/config"
	"ats-screening-go/internal/constants"
	"ats-screening-go/internal/storage/models"
	"ats-screening-go/internal/tracing"
	"ats-screening-go/internal/types"
)

var mysqlTracer = otel.Tracer("ats-screening-go/storage/mysql")

// ErrRunRecordNotFound 指定的运行记录不存在
var ErrRunRecordNotFound = errors.New("筛选运行记录不存在")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	// 为所有CRUD操作注册Before和After回调
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", tracing.SafeSQL(sqlStatement)),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement.RowsAffected > 0 {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		} else {
			span.SetAttributes(attribute.Int64("db.rows_affected", 0))
		}

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
		if db.Error != nil {
			if db.Error == gorm.ErrRecordNotFound {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.SetAttributes(attribute.String("error.message", db.Error.Error()))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// WithDisableErrSkip 设置是否禁用错误跳过
func (p *GormTracingPlugin) WithDisableErrSkip(disable bool) *GormTracingPlugin {
	p.disableErrSkip = disable
	return p
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	// 配置GORM日志级别
	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	tracingPlugin := NewGormTracingPlugin(cfg.Database).WithDisableErrSkip(true)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 创建一个静默的logger以关闭迁移期间的SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.ScreeningRun{},
		&models.CandidateResultRecord{},
		&models.OutboxMessage{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	log.Println("GORM数据库结构迁移成功")
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// CreateScreeningRun 创建筛选运行记录，同事务写入运行请求的outbox消息
func (m *MySQL) CreateScreeningRun(ctx context.Context, run *models.ScreeningRun, outboxMsg *models.OutboxMessage) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.CreateScreeningRun",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.cfg.Database),
		attribute.String("screening.run_uuid", run.RunUUID),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if outboxMsg != nil {
			if err := tx.Create(outboxMsg).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetScreeningRun 查询运行主记录
func (m *MySQL) GetScreeningRun(ctx context.Context, runUUID string) (*models.ScreeningRun, error) {
	var run models.ScreeningRun
	err := m.db.WithContext(ctx).First(&run, "run_uuid = ?", runUUID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

// GetRunResults 按名次升序返回运行的全部评分结果
func (m *MySQL) GetRunResults(ctx context.Context, runUUID string) ([]models.CandidateResultRecord, error) {
	var records []models.CandidateResultRecord
	err := m.db.WithContext(ctx).
		Where("run_uuid = ?", runUUID).
		Order("overall_rank ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateRunStatus 更新运行的处理状态
func (m *MySQL) UpdateRunStatus(ctx context.Context, runUUID string, status string, failureReason string) error {
	updates := map[string]interface{}{
		"processing_status": status,
		"failure_reason":    failureReason,
	}
	result := m.db.WithContext(ctx).Model(&models.ScreeningRun{}).
		Where("run_uuid = ?", runUUID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunRecordNotFound
	}
	return nil
}

// SaveRunOutcome 原子地写入运行终态：状态、统计、失败列表与全部结果行
// 旧结果行先删除，保证不会出现新旧结果混合
func (m *MySQL) SaveRunOutcome(ctx context.Context, runUUID string, status string, failureReason string, stats types.RunStatistics, results []types.CandidateResult, failures []types.CandidateFailure) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.SaveRunOutcome",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.cfg.Database),
		attribute.String("screening.run_uuid", runUUID),
		attribute.String("screening.status", status),
		attribute.Int("screening.result_count", len(results)),
	)

	failuresJSON, err := models.MapToJSON(failures)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("序列化失败列表失败: %w", err)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"processing_status":    status,
			"failure_reason":       failureReason,
			"failures_json":        failuresJSON,
			"total_candidates":     stats.TotalCandidates,
			"qualified_candidates": stats.QualifiedCandidates,
			"average_score":        stats.AverageScore,
			"top_score":            stats.TopScore,
			"failed_candidates":    stats.FailedCandidates,
		}
		result := tx.Model(&models.ScreeningRun{}).
			Where("run_uuid = ?", runUUID).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRunRecordNotFound
		}

		if err := tx.Where("run_uuid = ?", runUUID).Delete(&models.CandidateResultRecord{}).Error; err != nil {
			return err
		}

		if len(results) == 0 {
			return nil
		}
		records := make([]models.CandidateResultRecord, 0, len(results))
		for _, r := range results {
			records = append(records, models.CandidateResultRecord{
				RunUUID:         runUUID,
				ResumeID:        r.ResumeID,
				CandidateName:   r.CandidateName,
				MatchScore:      r.MatchScore,
				SkillsMatch:     r.SkillsMatch,
				ExperienceMatch: r.ExperienceMatch,
				EducationMatch:  r.EducationMatch,
				OverallRank:     r.OverallRank,
			})
		}
		return tx.Create(&records).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// ResetRunForRerun 原子地把终态运行重置回PENDING：清空统计与结果，写入重跑outbox消息
func (m *MySQL) ResetRunForRerun(ctx context.Context, runUUID string, outboxMsg *models.OutboxMessage) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.ResetRunForRerun",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.cfg.Database),
		attribute.String("screening.run_uuid", runUUID),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"processing_status":    constants.RunStatusPending,
			"failure_reason":       "",
			"failures_json":        nil,
			"total_candidates":     0,
			"qualified_candidates": 0,
			"average_score":        0,
			"top_score":            0,
			"failed_candidates":    0,
			"archive_path_oss":     "",
		}
		// 只允许从终态重置，防止与在途评估并发混写
		result := tx.Model(&models.ScreeningRun{}).
			Where("run_uuid = ? AND processing_status IN ?", runUUID,
				[]string{constants.RunStatusCompleted, constants.RunStatusFailed}).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRunRecordNotFound
		}

		if err := tx.Where("run_uuid = ?", runUUID).Delete(&models.CandidateResultRecord{}).Error; err != nil {
			return err
		}

		if outboxMsg != nil {
			if err := tx.Create(outboxMsg).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateRunArchivePath 记录终态结果在MinIO中的归档路径
func (m *MySQL) UpdateRunArchivePath(ctx context.Context, runUUID string, archivePath string) error {
	return m.db.WithContext(ctx).Model(&models.ScreeningRun{}).
		Where("run_uuid = ?", runUUID).
		Update("archive_path_oss", archivePath).Error
}

// ListRunsByStatus 按状态分页查询运行，按创建时间倒序
func (m *MySQL) ListRunsByStatus(ctx context.Context, status string, limit, offset int) ([]models.ScreeningRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.ScreeningRun
	query := m.db.WithContext(ctx).Model(&models.ScreeningRun{})
	if status != "" {
		query = query.Where("processing_status = ?", status)
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
