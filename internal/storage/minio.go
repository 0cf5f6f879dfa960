package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"ats-screening-go/internal/config"
	"ats-screening-go/internal/tracing"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadCandidatePool 上传候选人池快照(JSON)，返回对象键
	UploadCandidatePool(ctx context.Context, runUUID string, snapshot []byte) (string, error)

	// GetCandidatePool 下载候选人池快照
	GetCandidatePool(ctx context.Context, objectKey string) ([]byte, error)

	// ArchiveRunResult 归档运行结果(JSON)，返回对象键及内容MD5
	ArchiveRunResult(ctx context.Context, runUUID string, result []byte) (string, string, error)

	// GetRunArchive 下载运行结果归档
	GetRunArchive(ctx context.Context, objectKey string) ([]byte, error)

	// GetPresignedArchiveURL 获取归档对象的预签名下载URL
	GetPresignedArchiveURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// DeleteCandidatePool 删除候选人池快照
	DeleteCandidatePool(ctx context.Context, objectKey string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client        *minio.Client
	cfg           *config.MinIOConfig
	poolBucket    string
	archiveBucket string
	logger        *log.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("[MinIO] Initializing MinIO client with endpoint: %s, poolBucket: %s, archiveBucket: %s", cfg.Endpoint, cfg.CandidatePoolBucket, cfg.RunArchiveBucket)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.Printf("[MinIO] Initialization failed: %v", err)
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	poolBucket := cfg.CandidatePoolBucket
	if poolBucket == "" {
		poolBucket = "candidate-pools"
	}

	archiveBucket := cfg.RunArchiveBucket
	if archiveBucket == "" {
		archiveBucket = "screening-run-archives"
	}

	m := &MinIO{
		client:        client,
		cfg:           cfg,
		poolBucket:    poolBucket,
		archiveBucket: archiveBucket,
		logger:        logger,
	}

	// 确保存储桶存在
	if err = m.ensureBucketExists(poolBucket, cfg.Location); err != nil {
		logger.Printf("[MinIO] Failed to ensure pool bucket %s exists: %v", poolBucket, err)
		return nil, fmt.Errorf("确保候选人池存储桶 %s 存在失败: %w", poolBucket, err)
	}

	if err = m.ensureBucketExists(archiveBucket, cfg.Location); err != nil {
		logger.Printf("[MinIO] Failed to ensure archive bucket %s exists: %v", archiveBucket, err)
		return nil, fmt.Errorf("确保归档存储桶 %s 存在失败: %w", archiveBucket, err)
	}

	// 设置生命周期规则
	if cfg.CandidatePoolExpireDays > 0 || cfg.RunArchiveExpireDays > 0 {
		if err = m.setupLifecycleRules(context.Background()); err != nil {
			logger.Printf("[MinIO] Warning: Failed to set up lifecycle rules: %v", err)
		}
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		m.logger.Printf("[MinIO] Bucket %s does not exist, attempting to create...", bucketName)
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created successfully.", bucketName)
	}
	return nil
}

// setupLifecycleRules 设置对象生命周期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.CandidatePoolExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.poolBucket, "expire-candidate-pools", m.cfg.CandidatePoolExpireDays); err != nil {
			return fmt.Errorf("为候选人池存储桶 %s 设置生命周期失败: %w", m.poolBucket, err)
		}
	}
	if m.cfg.RunArchiveExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.archiveBucket, "expire-run-archives", m.cfg.RunArchiveExpireDays); err != nil {
			return fmt.Errorf("为归档存储桶 %s 设置生命周期失败: %w", m.archiveBucket, err)
		}
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置生命周期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}

	if err := m.client.SetBucketLifecycle(ctx, bucketName, lc); err != nil {
		m.logger.Printf("[MinIO] Error setting lifecycle for bucket %s: %v", bucketName, err)
		return err
	}
	m.logger.Printf("[MinIO] Lifecycle rule %s set for bucket %s (expire after %d days).", ruleID, bucketName, expiryDays)
	return nil
}

// UploadCandidatePool 上传候选人池快照到poolBucket
// 返回MinIO中的对象键 (不含bucket前缀)
func (m *MinIO) UploadCandidatePool(ctx context.Context, runUUID string, snapshot []byte) (string, error) {
	// 构建对象名称，例如: screening/runUUID/candidates.json
	objectName := fmt.Sprintf("screening/%s/candidates.json", runUUID)

	if m.cfg.EnableTestLogging && m.logger.Writer() != io.Discard {
		m.logger.Printf("[MinIO-UploadCandidatePool] Uploading: RunUUID='%s', ObjectName='%s', Bucket='%s', Size=%d, Preview='%s'",
			runUUID, objectName, m.poolBucket, len(snapshot), tracing.SafeProfileContent(string(snapshot)))
	}

	_, err := m.client.PutObject(ctx, m.poolBucket, objectName, bytes.NewReader(snapshot), int64(len(snapshot)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("上传候选人池快照 %s 到存储桶 %s 失败: %w", objectName, m.poolBucket, err)
	}

	return objectName, nil
}

// GetCandidatePool 从MinIO下载候选人池快照
func (m *MinIO) GetCandidatePool(ctx context.Context, objectKey string) ([]byte, error) {
	return m.downloadObject(ctx, m.poolBucket, objectKey)
}

// ArchiveRunResult 归档运行结果到archiveBucket，同时计算内容MD5
// 返回: objectKey, md5Hex, error
func (m *MinIO) ArchiveRunResult(ctx context.Context, runUUID string, result []byte) (string, string, error) {
	objectName := fmt.Sprintf("screening/%s/result.json", runUUID)

	md5Hash := md5.New()
	teeReader := io.TeeReader(bytes.NewReader(result), md5Hash)

	if m.cfg.EnableTestLogging && m.logger.Writer() != io.Discard {
		m.logger.Printf("[MinIO-ArchiveRunResult] Archiving: RunUUID='%s', ObjectName='%s', Bucket='%s', Size=%d", runUUID, objectName, m.archiveBucket, len(result))
	}

	info, err := m.client.PutObject(ctx, m.archiveBucket, objectName, teeReader, int64(len(result)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", "", fmt.Errorf("归档运行结果 %s 到存储桶 %s 失败: %w", objectName, m.archiveBucket, err)
	}

	md5Hex := hex.EncodeToString(md5Hash.Sum(nil))

	if m.cfg.EnableTestLogging && m.logger.Writer() != io.Discard {
		m.logger.Printf("[MinIO-ArchiveRunResult] Successfully archived %s, ETag: %s, Size: %d, MD5: %s", objectName, info.ETag, info.Size, md5Hex)
	}

	return objectName, md5Hex, nil
}

// GetRunArchive 从MinIO下载运行结果归档
func (m *MinIO) GetRunArchive(ctx context.Context, objectKey string) ([]byte, error) {
	return m.downloadObject(ctx, m.archiveBucket, objectKey)
}

// downloadObject 下载指定桶中的对象
func (m *MinIO) downloadObject(ctx context.Context, bucketName, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", bucketName, objectKey, err)
	}
	defer obj.Close()

	// Stat可以提前区分"对象不存在"和读取错误
	stat, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", bucketName, objectKey, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", bucketName, objectKey, err)
	}

	if m.cfg.EnableTestLogging && m.logger.Writer() != io.Discard {
		m.logger.Printf("[MinIO-Download] Downloaded %d bytes from %s/%s (ContentType=%s)", len(data), bucketName, objectKey, stat.ContentType)
	}
	return data, nil
}

// GetPresignedArchiveURL 获取归档对象的预签名下载URL
func (m *MinIO) GetPresignedArchiveURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, m.archiveBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// DeleteCandidatePool 删除候选人池快照
func (m *MinIO) DeleteCandidatePool(ctx context.Context, objectKey string) error {
	err := m.client.RemoveObject(ctx, m.poolBucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// StatObject 暴露底层的StatObject方法，用于测试或特定场景
func (m *MinIO) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.client.StatObject(ctx, bucketName, objectName, opts)
}
