package config

import (
	"os"
	"path/filepath"
	"testing"

	yaml "gopkg.in/yaml.v2"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Expected defaults, got %#v", cfg)
	}
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balancer.yaml")
	err := os.WriteFile(path, []byte("gains:\n  kGyroAngle: 7.5\nfallTimeMS: 1500\n"), 0666)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Gains.KGyroAngle != 7.5 || cfg.FallTimeMS != 1500 {
		t.Fatalf("Overrides not applied: %#v", cfg)
	}
	if cfg.Gains.KGyroSpeed != 1.4 || cfg.WaitTimeMS != 5 {
		t.Fatalf("Defaults lost: %#v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balancer.yaml")
	if err := os.WriteFile(path, []byte("waitTimeMS: 0\n"), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Expected an error for zero wait time")
	}
}

func TestWriteInUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balancer.yaml")
	cfg := Default()
	cfg.Verbose = true
	if err := WriteInUse(path, cfg); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(path), "balancer-in-use.yaml"))
	if err != nil {
		t.Fatalf("In-use file not written: %v", err)
	}
	var back Config
	if err := yaml.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back != cfg {
		t.Fatalf("In-use config differs: %#v", back)
	}
}
