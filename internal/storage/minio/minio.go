package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"kernelboard/internal/config"
	"kernelboard/internal/storage"
	"kernelboard/internal/tracer"
	"kernelboard/internal/util"
)

// MinioClient wraps the MinIO SDK client.
type MinioClient struct {
	client    *minio.Client
	cfg       *config.MinioConfig
	transport *http.Transport
}

// NewMinioClient initializes and returns a MinIO client.
func NewMinioClient() (storage.Storage, error) {
	cfg, err := config.GetMinioConfig()
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   50,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       120 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableCompression: true,
		DisableKeepAlives:  false,
	}

	cli, err := minio.New(cfg.URL, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.ACCESS_KEY, cfg.SECRET_KEY, ""),
		Secure:    cfg.USE_SSL,
		Transport: transport,
	})
	if err != nil {
		return nil, err
	}

	return &MinioClient{client: cli, cfg: cfg, transport: transport}, nil
}

// Upload archives a code blob under objectPath.
func (m *MinioClient) Upload(ctx context.Context, objectPath string, data []byte) error {

	ctx, span := tracer.GetTracer().Start(ctx, "MinIO/Upload")
	defer span.End()

	reader := bytes.NewReader(data)

	_, err := m.client.PutObject(ctx, m.cfg.CODE_BUCKET, objectPath, reader, -1, minio.PutObjectOptions{})
	if err != nil {
		util.RecordSpanError(span, err)
		return err
	}

	return nil
}

// Download retrieves an archived blob.
func (m *MinioClient) Download(ctx context.Context, objectPath string) ([]byte, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "MinIO/Download")
	defer span.End()

	object, err := m.client.GetObject(ctx, m.cfg.CODE_BUCKET, objectPath, minio.GetObjectOptions{})
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	defer object.Close()

	// check if the object exists
	if _, err := object.Stat(); err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	data, err := io.ReadAll(object)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	return data, nil
}

func (m *MinioClient) ShutDown(ctx context.Context) {
	m.transport.CloseIdleConnections()
}
