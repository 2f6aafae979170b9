package config

import (
	"os"
	"reflect"
	"testing"
)

func withEnv(t *testing.T, envs map[string]string) {
	t.Helper()

	original := make(map[string]string)
	for k := range envs {
		original[k] = os.Getenv(k)
	}

	for k, v := range envs {
		_ = os.Setenv(k, v)
	}

	t.Cleanup(func() {
		for k, v := range original {
			if v == "" {
				_ = os.Unsetenv(k)
			} else {
				_ = os.Setenv(k, v)
			}
		}
	})
}

func TestGetConfig(t *testing.T) {
	tests := []struct {
		name      string
		envs      map[string]string
		expected  *Config
		shouldErr bool
	}{
		{
			name: "valid config",
			envs: map[string]string{
				"SERVICE_NAME": "kernelboard",
				"CACHE_TYPE":   "freecache",
				"STORAGE_TYPE": "minio",
			},
			expected: &Config{
				SERVICE_NAME: "kernelboard",
				CACHE_TYPE:   "freecache",
				STORAGE_TYPE: "minio",
				QUEUE_TYPE:   "jetstream",
				API_PORT:     "8080",
			},
		},
		{
			name: "explicit port",
			envs: map[string]string{
				"SERVICE_NAME": "kernelboard",
				"CACHE_TYPE":   "jetstream",
				"STORAGE_TYPE": "minio",
				"API_PORT":     "9090",
			},
			expected: &Config{
				SERVICE_NAME: "kernelboard",
				CACHE_TYPE:   "jetstream",
				STORAGE_TYPE: "minio",
				QUEUE_TYPE:   "jetstream",
				API_PORT:     "9090",
			},
		},
		{
			name:      "missing service name",
			envs:      map[string]string{"CACHE_TYPE": "freecache", "STORAGE_TYPE": "minio"},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.envs)

			cfg, err := GetConfig()
			if tt.shouldErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(cfg, tt.expected) {
				t.Fatalf("got %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestGetGateConfig(t *testing.T) {
	tests := []struct {
		name      string
		envs      map[string]string
		expected  *GateConfig
		shouldErr bool
	}{
		{
			name:     "defaults",
			envs:     map[string]string{},
			expected: &GateConfig{TIMEOUT_SECONDS: 120},
		},
		{
			name:     "explicit timeout",
			envs:     map[string]string{"GATE_TIMEOUT_SECONDS": "30"},
			expected: &GateConfig{TIMEOUT_SECONDS: 30},
		},
		{
			name:      "zero timeout",
			envs:      map[string]string{"GATE_TIMEOUT_SECONDS": "0"},
			shouldErr: true,
		},
		{
			name:      "not a number",
			envs:      map[string]string{"GATE_TIMEOUT_SECONDS": "soon"},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.envs)

			cfg, err := GetGateConfig()
			if tt.shouldErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(cfg, tt.expected) {
				t.Fatalf("got %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestGetMinioConfig(t *testing.T) {
	valid := map[string]string{
		"MINIO_ENDPOINT":    "localhost:9000",
		"MINIO_CODE_BUCKET": "code",
		"MINIO_USE_SSL":     "false",
		"MINIO_ACCESS_KEY":  "ak",
		"MINIO_SECRET_KEY":  "sk",
	}

	t.Run("valid minio config", func(t *testing.T) {
		withEnv(t, valid)

		cfg, err := GetMinioConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := &MinioConfig{
			URL:         "localhost:9000",
			CODE_BUCKET: "code",
			USE_SSL:     false,
			ACCESS_KEY:  "ak",
			SECRET_KEY:  "sk",
		}
		if !reflect.DeepEqual(cfg, want) {
			t.Fatalf("got %+v, want %+v", cfg, want)
		}
	})

	for _, missing := range []string{"MINIO_ENDPOINT", "MINIO_CODE_BUCKET", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY"} {
		t.Run("missing "+missing, func(t *testing.T) {
			envs := make(map[string]string, len(valid))
			for k, v := range valid {
				envs[k] = v
			}
			envs[missing] = ""
			withEnv(t, envs)

			if _, err := GetMinioConfig(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}
