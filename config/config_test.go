package config

import "testing"

func TestDefault_MatchesStructTagDefaults(t *testing.T) {
	cfg := Default()
	if cfg.SendQueueCapacity != 256 {
		t.Fatalf("expected default SendQueueCapacity 256, got %d", cfg.SendQueueCapacity)
	}
	if cfg.ShutdownDrainTimeout.Seconds() != 30 {
		t.Fatalf("expected default ShutdownDrainTimeout 30s, got %v", cfg.ShutdownDrainTimeout)
	}
}

func TestFromEnv_NoOverridesMatchesDefault(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected FromEnv() with no env vars set to equal Default(), got %+v", cfg)
	}
}

func TestFromEnv_ReadsOverride(t *testing.T) {
	t.Setenv("MSGPACKRPC_SEND_QUEUE_CAPACITY", "64")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.SendQueueCapacity != 64 {
		t.Fatalf("expected SendQueueCapacity 64 from env override, got %d", cfg.SendQueueCapacity)
	}
}
