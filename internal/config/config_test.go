package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Transcode.BaseURL != "https://livepeer.studio/api" {
		t.Errorf("transcode base URL = %q", cfg.Transcode.BaseURL)
	}
	if cfg.Probe.TimeoutSeconds != 5 {
		t.Errorf("probe timeout = %d", cfg.Probe.TimeoutSeconds)
	}
	if cfg.Swarm.StatusIntervalSeconds != 2 {
		t.Errorf("status interval = %d", cfg.Swarm.StatusIntervalSeconds)
	}
	if cfg.Swarm.NoPeerDelaySeconds != 5 {
		t.Errorf("no-peer delay = %d", cfg.Swarm.NoPeerDelaySeconds)
	}
	if len(cfg.Probe.STUNServers) == 0 {
		t.Error("no default STUN servers")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STREAMBRIDGE_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("STREAMBRIDGE_TRANSCODE_APIKEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("server addr = %q, want env override", cfg.Server.Addr)
	}
	if cfg.Transcode.APIKey != "test-key" {
		t.Errorf("api key = %q, want env override", cfg.Transcode.APIKey)
	}
}
