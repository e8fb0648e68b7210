package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/config"
	"tush00nka/teledrive/internal/model"
)

const thumbnailWidth = 320

// objectUploader is the part of manager.Uploader used here.
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Service stages uploaded files in an S3-compatible bucket and hands out
// presigned links for previews.
type S3Service struct {
	bucket   string
	ttl      time.Duration
	uploader objectUploader
	presign  func(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	s3Client *s3.Client
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewS3Service(cfg *config.Config, log *zap.SugaredLogger) (*S3Service, error) {
	if cfg.S3BucketName == "" {
		return nil, fmt.Errorf("S3_BUCKET_NAME is required")
	}

	s3Opts := []func(*s3.Options){}
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true // Обязательно для MinIO
		})
	}

	awsCfg := aws.Config{
		Region:      cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
	}
	s3Client := s3.NewFromConfig(awsCfg, s3Opts...)
	presignClient := s3.NewPresignClient(s3Client)

	ttl := cfg.S3PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	svc := &S3Service{
		bucket:   cfg.S3BucketName,
		ttl:      ttl,
		uploader: manager.NewUploader(s3Client),
		presign: func(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
			req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			}, s3.WithPresignExpires(ttl))
			if err != nil {
				return "", err
			}
			return req.URL, nil
		},
		s3Client: s3Client,
		log:      log,
		now:      time.Now,
	}

	log.Infow("S3 preview staging enabled", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3BucketName)
	return svc, nil
}

// Stage uploads content under previews/<session>/<uuid>/ and returns presigned
// links. Images also get a JPEG thumbnail.
func (s *S3Service) Stage(ctx context.Context, sessionID, fileName, contentType string, content []byte) (*model.PreviewObject, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	prefix := path.Join("previews", sessionID, uuid.NewString())
	key := path.Join(prefix, path.Base(fileName))

	if err := s.put(ctx, key, contentType, bytes.NewReader(content)); err != nil {
		return nil, err
	}

	obj := &model.PreviewObject{
		Key:         key,
		Bucket:      s.bucket,
		ContentType: contentType,
		ExpiresAt:   s.now().Add(s.ttl),
	}

	url, err := s.presign(ctx, s.bucket, key, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	obj.URL = url

	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		thumbKey := path.Join(prefix, "thumb.jpg")
		thumbURL, err := s.stageThumbnail(ctx, thumbKey, content)
		if err != nil {
			// превью без миниатюры лучше, чем никакого
			s.log.Warnw("thumbnail generation failed", "key", key, "error", err)
			obj.ThumbnailURL = url
		} else {
			obj.ThumbnailURL = thumbURL
		}
	}

	return obj, nil
}

func (s *S3Service) stageThumbnail(ctx context.Context, key string, content []byte) (string, error) {
	thumb, err := Thumbnail(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	if err := s.put(ctx, key, "image/jpeg", bytes.NewReader(thumb)); err != nil {
		return "", err
	}
	return s.presign(ctx, s.bucket, key, s.ttl)
}

func (s *S3Service) put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Thumbnail decodes an image and renders a JPEG at most thumbnailWidth wide.
func Thumbnail(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var out image.Image = img
	if img.Bounds().Dx() > thumbnailWidth {
		out = imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *S3Service) HealthCheck(ctx context.Context) error {
	_, err := s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}
