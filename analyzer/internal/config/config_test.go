package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GRPC_PORT", "")
	t.Setenv("BATCH_MAX_SAMPLES", "")
	t.Setenv("NATS_URL", "")

	cfg := Load()

	if cfg.GRPCPort != "50051" {
		t.Errorf("Expected default gRPC port, got %s", cfg.GRPCPort)
	}
	if cfg.BatchMaxSamples != 60 {
		t.Errorf("Expected 60 samples per batch, got %d", cfg.BatchMaxSamples)
	}
	if cfg.NATSURL != "" {
		t.Errorf("Expected NATS disabled by default, got %s", cfg.NATSURL)
	}
	if cfg.BLEBufferMaxAge != 24*time.Hour {
		t.Errorf("Expected 24h BLE buffer max age, got %v", cfg.BLEBufferMaxAge)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("BATCH_MAX_SPAN_MS", "30000")
	t.Setenv("OUT_OF_ORDER_TOLERANCE_MS", "250")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg := Load()

	if cfg.HTTPPort != "9090" {
		t.Errorf("Expected HTTP port 9090, got %s", cfg.HTTPPort)
	}
	if cfg.BatchMaxSpanMS != 30000 {
		t.Errorf("Expected span 30000, got %d", cfg.BatchMaxSpanMS)
	}
	if cfg.OutOfOrderTolerance != 250*time.Millisecond {
		t.Errorf("Expected 250ms tolerance, got %v", cfg.OutOfOrderTolerance)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("Expected Redis DB 3, got %d", cfg.RedisDB)
	}
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("Unexpected NATS URL: %s", cfg.NATSURL)
	}
}

func TestLoad_InvalidNumberFallsBack(t *testing.T) {
	t.Setenv("ACK_EVERY_N", "ten")

	if cfg := Load(); cfg.AckEveryN != 10 {
		t.Errorf("Expected fallback to default 10, got %d", cfg.AckEveryN)
	}
}
