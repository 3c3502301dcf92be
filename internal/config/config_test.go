package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// missingPath points at a file that does not exist, so a precedence level
// contributes nothing.
func missingPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.yaml")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{SystemPath: missingPath(t), UserPath: missingPath(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Daemon.MaxRecordingSeconds != 30 {
		t.Fatalf("expected default max duration, got %d", cfg.Daemon.MaxRecordingSeconds)
	}
	if cfg.Daemon.SampleRate != 16000 {
		t.Fatalf("expected default sample rate, got %d", cfg.Daemon.SampleRate)
	}
	if cfg.Model.Language != "en" {
		t.Fatalf("expected default language, got %s", cfg.Model.Language)
	}
}

func TestEnvOnlyFieldSurfaces(t *testing.T) {
	t.Setenv("VOXD_LANGUAGE", "de")
	t.Setenv("VOXD_MAX_RECORDING_SECONDS", "45")

	cfg, err := Load(LoadOptions{SystemPath: missingPath(t), UserPath: missingPath(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.Language != "de" {
		t.Fatalf("expected env language, got %s", cfg.Model.Language)
	}
	if cfg.Daemon.MaxRecordingSeconds != 45 {
		t.Fatalf("expected env max duration, got %d", cfg.Daemon.MaxRecordingSeconds)
	}
}

func TestFileOverridesEnv(t *testing.T) {
	t.Setenv("VOXD_LANGUAGE", "de")
	user := writeConfig(t, "user.yaml", "model:\n  language: fr\n")

	cfg, err := Load(LoadOptions{SystemPath: missingPath(t), UserPath: user})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.Language != "fr" {
		t.Fatalf("expected file to beat env, got %s", cfg.Model.Language)
	}
}

func TestUserFileOverridesSystemFile(t *testing.T) {
	system := writeConfig(t, "system.yaml", "model:\n  language: es\n  name: ggml-small.bin\n")
	user := writeConfig(t, "user.yaml", "model:\n  language: it\n")

	cfg, err := Load(LoadOptions{SystemPath: system, UserPath: user})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.Language != "it" {
		t.Fatalf("expected user file to shadow system, got %s", cfg.Model.Language)
	}
	// Field absent from the user file falls through to the system value.
	if cfg.Model.Name != "ggml-small.bin" {
		t.Fatalf("expected system model name to survive, got %s", cfg.Model.Name)
	}
}

func TestCommandLineOverridesEverything(t *testing.T) {
	t.Setenv("VOXD_LANGUAGE", "de")
	user := writeConfig(t, "user.yaml", "model:\n  language: fr\n")

	cfg, err := Load(LoadOptions{
		SystemPath: missingPath(t),
		UserPath:   user,
		Overrides:  Overrides{Language: "pt", MaxRecordingSeconds: 12},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.Language != "pt" {
		t.Fatalf("expected command-line value, got %s", cfg.Model.Language)
	}
	if cfg.Daemon.MaxRecordingSeconds != 12 {
		t.Fatalf("expected command-line max duration, got %d", cfg.Daemon.MaxRecordingSeconds)
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	_, err := Load(LoadOptions{
		ExplicitPath: missingPath(t),
		SystemPath:   missingPath(t),
		UserPath:     missingPath(t),
	})
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("VOXD_MAX_RECORDING_SECONDS", "-5")
	if _, err := Load(LoadOptions{SystemPath: missingPath(t), UserPath: missingPath(t)}); err == nil {
		t.Fatal("expected validation error for negative duration")
	}
}

func TestTraceExporterValidation(t *testing.T) {
	t.Setenv("VOXD_TELEMETRY_TRACE_EXPORTER", "jaeger")
	if _, err := Load(LoadOptions{SystemPath: missingPath(t), UserPath: missingPath(t)}); err == nil {
		t.Fatal("expected validation error for unknown trace exporter")
	}
}

func TestOTLPExporterRequiresEndpoint(t *testing.T) {
	t.Setenv("VOXD_TELEMETRY_TRACE_EXPORTER", "otlp")
	if _, err := Load(LoadOptions{SystemPath: missingPath(t), UserPath: missingPath(t)}); err == nil {
		t.Fatal("expected validation error for otlp without endpoint")
	}
}

func TestTracingOffByDefault(t *testing.T) {
	cfg, err := Load(LoadOptions{SystemPath: missingPath(t), UserPath: missingPath(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry.TraceExporter != "none" {
		t.Fatalf("expected tracing off by default, got %s", cfg.Telemetry.TraceExporter)
	}
}
