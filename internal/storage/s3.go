package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"korner-support-service/internal/config"
)

// S3Presigner signs short-lived upload and view URLs for the private KYC bucket.
// Nothing is sent to S3 when signing.
type S3Presigner struct {
	client    *s3.S3
	bucket    string
	uploadTTL time.Duration
	viewTTL   time.Duration
}

func NewS3Presigner(cfg config.S3Config) (*S3Presigner, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3Presigner{
		client:    s3.New(sess),
		bucket:    cfg.Bucket,
		uploadTTL: cfg.UploadURLTTL,
		viewTTL:   cfg.ViewURLTTL,
	}, nil
}

// PresignUpload returns a PUT URL; the client must send the same Content-Type.
func (p *S3Presigner) PresignUpload(ctx context.Context, key, contentType string) (string, error) {
	req, _ := p.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	req.SetContext(ctx)
	url, err := req.Presign(p.uploadTTL)
	if err != nil {
		return "", fmt.Errorf("presign upload %s: %w", key, err)
	}
	return url, nil
}

func (p *S3Presigner) PresignView(ctx context.Context, key string) (string, error) {
	req, _ := p.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)
	url, err := req.Presign(p.viewTTL)
	if err != nil {
		return "", fmt.Errorf("presign view %s: %w", key, err)
	}
	return url, nil
}
