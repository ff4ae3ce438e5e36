package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/resoul/shortsgen/config"
)

// StorageService uploads rendered media to an S3-compatible bucket (R2).
type StorageService struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewStorageService(cfg config.StorageConfig) (*StorageService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &StorageService{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// UploadVideo stores a rendered short under
// shorts/<channel>/<platform>_<timestamp>_<id>.mp4 and returns its public URL.
func (s *StorageService) UploadVideo(ctx context.Context, localPath, channel, platform string) (string, error) {
	key := fmt.Sprintf("shorts/%s/%s_%s_%s.mp4",
		sanitizeKeyPart(channel),
		sanitizeKeyPart(platform),
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8],
	)

	if err := s.putFile(ctx, key, localPath, "video/mp4"); err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

// UploadFetched stores a fetched media artifact under downloads/ keyed by
// task id, preserving the requested container extension.
func (s *StorageService) UploadFetched(ctx context.Context, localPath, taskID, format string) (string, error) {
	key := fmt.Sprintf("downloads/%s.%s", taskID, sanitizeKeyPart(format))

	if err := s.putFile(ctx, key, localPath, contentTypeForFormat(format)); err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

func (s *StorageService) putFile(ctx context.Context, key, localPath, contentType string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file failed (path=%s): %w", localPath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat file failed: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, file, stat.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object failed (bucket=%s, object=%s): %w", s.bucket, key, err)
	}

	return nil
}

func sanitizeKeyPart(part string) string {
	part = strings.ReplaceAll(part, " ", "_")
	return strings.ReplaceAll(part, "/", "_")
}

func contentTypeForFormat(format string) string {
	switch strings.ToLower(format) {
	case "mp4", "":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "mp3":
		return "audio/mpeg"
	case "m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
