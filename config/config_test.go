package config

import "testing"

func TestValidate_RequiresNodeID(t *testing.T) {
	cfg := DefaultConfig("", false)
	if err := Validate(cfg); err == nil {
		t.Error("config without node.id should be invalid")
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig("cbr-1", true)
	cfg.Log.Level = "verbose"
	if err := Validate(cfg); err == nil {
		t.Error("unknown log level should be invalid")
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := DefaultConfig("cbr-1", true)
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestNodeDataDir_KeyedByNodeID(t *testing.T) {
	cfg := DefaultConfig("cbr-1", true)
	cfg.DataDir = "/tmp/cbrledger"

	if got, want := cfg.NodeDataDir(), "/tmp/cbrledger/cbr-1"; got != want {
		t.Errorf("NodeDataDir() = %q, want %q", got, want)
	}
}
