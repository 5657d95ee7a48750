package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/traffic-sign/internal/classifier"
	"github.com/example/traffic-sign/internal/result"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.ShutdownTimeout != 15*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", cfg.HTTP.ShutdownTimeout)
	}
	if cfg.Pipeline.TargetWidth != 224 || cfg.Pipeline.TargetHeight != 224 {
		t.Fatalf("unexpected target size %dx%d", cfg.Pipeline.TargetWidth, cfg.Pipeline.TargetHeight)
	}
	if cfg.Threshold() != result.DefaultThreshold {
		t.Fatalf("unexpected threshold %v", cfg.Threshold())
	}
	if cfg.Pipeline.MaxPixels != 25_000_000 {
		t.Fatalf("unexpected max pixels %d", cfg.Pipeline.MaxPixels)
	}
	if cfg.Classifier.Kind != classifier.KindUntrained {
		t.Fatalf("unexpected kind %q", cfg.Classifier.Kind)
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
http:
  addr: ":9000"
pipeline:
  target_width: 48
  target_height: 48
  labels_preset: placeholder
  show_all_entries: true
classifier:
  kind: untrained
  input_width: 48
  input_height: 48
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HTTP_ADDR", ":9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("expected env override, got %q", cfg.HTTP.Addr)
	}
	if cfg.Pipeline.TargetWidth != 48 || cfg.Pipeline.LabelsPreset != "placeholder" {
		t.Fatalf("file values not applied: %+v", cfg.Pipeline)
	}
	if cfg.Threshold() != result.NoThreshold {
		t.Fatalf("show_all_entries should disable the threshold, got %v", cfg.Threshold())
	}
	opts := cfg.ClassifierOptions(10)
	if opts.InputWidth != 48 || opts.NumLabels != 10 {
		t.Fatalf("unexpected classifier options %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return cfg
	}

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"negative threshold":  {func(c *Config) { c.Pipeline.DisplayThreshold = -0.1 }, "display_threshold"},
		"threshold of one":    {func(c *Config) { c.Pipeline.DisplayThreshold = 1 }, "display_threshold"},
		"zero target":         {func(c *Config) { c.Pipeline.TargetWidth = 0 }, "target size"},
		"zero max pixels":     {func(c *Config) { c.Pipeline.MaxPixels = 0 }, "max_pixels"},
		"unknown kind":        {func(c *Config) { c.Classifier.Kind = "magic" }, "unknown classifier kind"},
		"onnx without model":  {func(c *Config) { c.Classifier.Kind = classifier.KindONNX }, "model_path"},
		"remote without addr": {func(c *Config) { c.Classifier.Kind = classifier.KindRemote }, "remote_addr"},
		"no labels":           {func(c *Config) {
			c.Pipeline.LabelsPreset = ""
			c.Pipeline.LabelsFile = ""
		}, "labels_preset"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}
