package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	Load()

	if AppConfig.APIPort != "8080" {
		t.Fatalf("APIPort = %q", AppConfig.APIPort)
	}
	if AppConfig.StoreBackend != BackendRedis || AppConfig.CatalogBackend != BackendMemory {
		t.Fatalf("backends = %q/%q", AppConfig.StoreBackend, AppConfig.CatalogBackend)
	}
	if AppConfig.ExpirySweepInterval != time.Second {
		t.Fatalf("ExpirySweepInterval = %v", AppConfig.ExpirySweepInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("ALLOW_DEV_TOKENS", "true")
	t.Setenv("EXPIRY_BATCH_SIZE", "not-a-number")
	Load()

	if AppConfig.APIPort != "9090" || AppConfig.StoreBackend != BackendMemory {
		t.Fatalf("overrides not applied: %+v", AppConfig)
	}
	if diff := cmp.Diff([]string{"http://a.test", "http://b.test"}, AppConfig.CORSOrigins); diff != "" {
		t.Fatalf("CORSOrigins mismatch (-want +got):\n%s", diff)
	}
	if !AppConfig.AllowDevTokens {
		t.Fatal("AllowDevTokens should be true")
	}
	if AppConfig.ExpiryBatchSize != 50 {
		t.Fatalf("invalid int should fall back, got %d", AppConfig.ExpiryBatchSize)
	}
}
