package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`payload_bucket: custom-bucket`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.PayloadBucket != "custom-bucket" {
		t.Fatalf("unexpected bucket %q", cfg.PayloadBucket)
	}
	if cfg.Submit.Concurrency != 8 || cfg.Chain.MaxItems != 100 || cfg.Query.PageSize != 100 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestParseFullDocument(t *testing.T) {
	doc := `
payload_bucket: payloads
submit:
  concurrency: 4
  retry_attempts: 5
  retry_backoff: 250ms
chain:
  max_items: 50
query:
  page_size: 25
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Submit.Concurrency != 4 || cfg.Submit.RetryAttempts != 5 {
		t.Fatalf("unexpected submit config %+v", cfg.Submit)
	}
	if time.Duration(cfg.Submit.RetryBackoff) != 250*time.Millisecond {
		t.Fatalf("unexpected backoff %v", cfg.Submit.RetryBackoff)
	}
	if cfg.Chain.MaxItems != 50 || cfg.Query.PageSize != 25 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.ProcessorOptions()) != 2 {
		t.Fatalf("unexpected processor options")
	}
	if cfg.Chainer() == nil {
		t.Fatalf("expected chainer")
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"blank bucket", `payload_bucket: ""`},
		{"zero concurrency", "submit:\n  concurrency: 0"},
		{"negative max items", "chain:\n  max_items: -1"},
		{"bad duration", "submit:\n  retry_backoff: soon"},
		{"not yaml", `{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.doc)); err == nil {
				t.Fatalf("expected error for %q", tc.doc)
			}
		})
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nimbus.yaml")
	if err := os.WriteFile(path, []byte(`payload_bucket: from-file`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PayloadBucket != "from-file" {
		t.Fatalf("unexpected bucket %q", cfg.PayloadBucket)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte(`payload_bucket: from-env`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NIMBUS_CONFIG", path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PayloadBucket != "from-env" {
		t.Fatalf("unexpected bucket %q", cfg.PayloadBucket)
	}
}
