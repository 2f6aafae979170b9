package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type NatsConfig struct {
	URL               string
	TTL               int
	BUCKET_NAME       string
	BUCKET_SIZE_BYTES int
}

type FreeCacheConfig struct {
	SIZE_BYTES int
	TTL        int
}

type MinioConfig struct {
	URL         string
	CODE_BUCKET string
	ACCESS_KEY  string
	SECRET_KEY  string
	USE_SSL     bool
}

type PostgresConfig struct {
	URL string
}

type GateConfig struct {
	TIMEOUT_SECONDS int
}

type RunnerConfig struct {
	CI_DISPATCH_URL      string
	CI_TOKEN             string
	CI_POLL_SECONDS      int
	SERVERLESS_URL       string
	SERVERLESS_TOKEN     string
	CONTAINER_IMAGE      string
	CONTAINER_CPU_QUOTA  int
	CONTAINER_MEM_BYTES  int
	CONTAINER_RUN_SECOND int
}

type Config struct {
	SERVICE_NAME string
	TRACE_URL    string
	CACHE_TYPE   string
	STORAGE_TYPE string
	QUEUE_TYPE   string
	API_PORT     string
}

// LoadDotEnv pulls a local .env into the process environment when present.
// Missing file is not an error; deployments set real env vars.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func env(key string) string {
	v := os.Getenv(key)
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func convertStringToInt(s string, key string) (int, error) {
	sInt, err := strconv.Atoi(s)
	if err != nil {
		return -1, fmt.Errorf("error initializing config with key: %s, err: %v", key, err)
	}
	return sInt, nil
}

func GetConfig() (*Config, error) {
	sn := env("SERVICE_NAME")
	if sn == "" {
		return nil, fmt.Errorf("KEY: SERVICE_NAME is empty")
	}
	ct := env("CACHE_TYPE")
	if ct == "" {
		return nil, fmt.Errorf("KEY: CACHE_TYPE is empty")
	}
	st := env("STORAGE_TYPE")
	if st == "" {
		return nil, fmt.Errorf("KEY: STORAGE_TYPE is empty")
	}
	return &Config{
		SERVICE_NAME: sn,
		TRACE_URL:    env("TRACE_URL"),
		CACHE_TYPE:   ct,
		STORAGE_TYPE: st,
		QUEUE_TYPE:   envOr("QUEUE_TYPE", "jetstream"),
		API_PORT:     envOr("API_PORT", "8080"),
	}, nil
}

func GetNatsConfig() (*NatsConfig, error) {
	ttl, err := convertStringToInt(env("JETSTREAM_TTL"), "JETSTREAM_TTL")
	if err != nil {
		return nil, err
	}
	url := env("JETSTREAM_URL")
	if url == "" {
		return nil, fmt.Errorf("KEY: JETSTREAM_URL is empty")
	}
	bn := env("JETSTREAM_BUCKET_NAME")
	if bn == "" {
		return nil, fmt.Errorf("KEY: JETSTREAM_BUCKET_NAME is empty")
	}
	bs, err := convertStringToInt(env("JETSTREAM_BUCKET_SIZE"), "JETSTREAM_BUCKET_SIZE")
	if err != nil {
		return nil, err
	}
	return &NatsConfig{
		URL:               url,
		TTL:               ttl,
		BUCKET_NAME:       bn,
		BUCKET_SIZE_BYTES: bs,
	}, nil
}

func GetFreeCacheConfig() (*FreeCacheConfig, error) {
	ttl, err := convertStringToInt(env("FREECACHE_TTL"), "FREECACHE_TTL")
	if err != nil {
		return nil, err
	}
	fs, err := convertStringToInt(env("FREECACHE_SIZE"), "FREECACHE_SIZE")
	if err != nil {
		return nil, err
	}
	return &FreeCacheConfig{
		TTL:        ttl,
		SIZE_BYTES: fs,
	}, nil
}

func GetPostgresConfig() (*PostgresConfig, error) {
	url := env("POSTGRES_URL")
	if url == "" {
		return nil, fmt.Errorf("KEY: POSTGRES_URL is empty")
	}
	return &PostgresConfig{
		URL: url,
	}, nil
}

func GetMinioConfig() (*MinioConfig, error) {
	url := env("MINIO_ENDPOINT")
	if url == "" {
		return nil, fmt.Errorf("KEY: MINIO_ENDPOINT is empty")
	}
	cb := env("MINIO_CODE_BUCKET")
	if cb == "" {
		return nil, fmt.Errorf("KEY: MINIO_CODE_BUCKET is empty")
	}
	ssl := env("MINIO_USE_SSL")
	if ssl != "true" && ssl != "false" {
		return nil, fmt.Errorf("KEY: MINIO_USE_SSL is invalid")
	}
	ak := env("MINIO_ACCESS_KEY")
	if ak == "" {
		return nil, fmt.Errorf("KEY: MINIO_ACCESS_KEY is empty")
	}
	sk := env("MINIO_SECRET_KEY")
	if sk == "" {
		return nil, fmt.Errorf("KEY: MINIO_SECRET_KEY is empty")
	}
	return &MinioConfig{
		URL:         url,
		CODE_BUCKET: cb,
		USE_SSL:     ssl == "true",
		ACCESS_KEY:  ak,
		SECRET_KEY:  sk,
	}, nil
}

func GetGateConfig() (*GateConfig, error) {
	raw := envOr("GATE_TIMEOUT_SECONDS", "120")
	ts, err := convertStringToInt(raw, "GATE_TIMEOUT_SECONDS")
	if err != nil {
		return nil, err
	}
	if ts <= 0 {
		return nil, fmt.Errorf("KEY: GATE_TIMEOUT_SECONDS must be positive")
	}
	return &GateConfig{TIMEOUT_SECONDS: ts}, nil
}

func GetRunnerConfig() (*RunnerConfig, error) {
	poll, err := convertStringToInt(envOr("CI_POLL_SECONDS", "10"), "CI_POLL_SECONDS")
	if err != nil {
		return nil, err
	}
	cpu, err := convertStringToInt(envOr("CONTAINER_CPU_QUOTA", "100000"), "CONTAINER_CPU_QUOTA")
	if err != nil {
		return nil, err
	}
	mem, err := convertStringToInt(envOr("CONTAINER_MEM_BYTES", "536870912"), "CONTAINER_MEM_BYTES")
	if err != nil {
		return nil, err
	}
	runSec, err := convertStringToInt(envOr("CONTAINER_RUN_SECONDS", "300"), "CONTAINER_RUN_SECONDS")
	if err != nil {
		return nil, err
	}
	return &RunnerConfig{
		CI_DISPATCH_URL:      env("CI_DISPATCH_URL"),
		CI_TOKEN:             env("CI_TOKEN"),
		CI_POLL_SECONDS:      poll,
		SERVERLESS_URL:       env("SERVERLESS_URL"),
		SERVERLESS_TOKEN:     env("SERVERLESS_TOKEN"),
		CONTAINER_IMAGE:      envOr("CONTAINER_IMAGE", "kernelboard/runner:latest"),
		CONTAINER_CPU_QUOTA:  cpu,
		CONTAINER_MEM_BYTES:  mem,
		CONTAINER_RUN_SECOND: runSec,
	}, nil
}
