package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rhinocodelab/idms-v3/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"
shutdown_timeout = "30s"

[logging]
level = "debug"
format = "json"

[database]
host = "localhost"
port = 5432
name = "idms"
user = "idms"
password = "idms"
ssl_mode = "disable"
max_open_conns = 25
max_idle_conns = 5
conn_max_lifetime = "15m"
conn_timeout = "5s"
auto_migrate = true

[storage]
container_name = "documents"
connection_string = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=a2V5;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

[api]
base_path = "/api"

[api.pagination]
default_page_size = 25
max_page_size = 50

[ingest]
resume_on_startup = true
hash_workers = 8
item_timeout = "2m"
max_file_size = "10MB"

[classifier]
base_url = "http://localhost:11434/v1"
model = "llava"

[classifier.criticality]
invoice = "high"
receipt = "low"
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[classifier.criticality]
receipt = "medium"
contract = "critical"
`

const minimalConfig = `
[database]
name = "idms"
user = "idms"

[storage]
connection_string = "conn"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging format: got %s, want json", cfg.Logging.Format)
	}
	if !cfg.Database.AutoMigrate {
		t.Error("database auto_migrate should be true")
	}
	if cfg.Storage.ContainerName != "documents" {
		t.Errorf("storage container: got %s, want documents", cfg.Storage.ContainerName)
	}
	if cfg.API.Pagination.DefaultPageSize != 25 {
		t.Errorf("pagination default_page_size: got %d, want 25", cfg.API.Pagination.DefaultPageSize)
	}
	if !cfg.Ingest.ResumeOnStartup {
		t.Error("ingest resume_on_startup should be true")
	}
	if cfg.Ingest.HashWorkers != 8 {
		t.Errorf("ingest hash_workers: got %d, want 8", cfg.Ingest.HashWorkers)
	}
	if got := cfg.Ingest.ItemTimeoutDuration(); got != 2*time.Minute {
		t.Errorf("ingest item_timeout: got %v, want 2m", got)
	}
	if got := cfg.Ingest.MaxFileSizeBytes(); got != 10*1024*1024 {
		t.Errorf("ingest max_file_size: got %d, want %d", got, 10*1024*1024)
	}
	if cfg.Classifier.Model != "llava" {
		t.Errorf("classifier model: got %s, want llava", cfg.Classifier.Model)
	}
	if cfg.Classifier.Criticality["invoice"] != "high" {
		t.Errorf("criticality[invoice]: got %q, want high", cfg.Classifier.Criticality["invoice"])
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	writeConfig(t, dir, "config.prod.toml", overlayConfig)
	chdir(t, dir)
	t.Setenv(config.EnvIDMSEnv, "prod")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost", cfg.Database.Host)
	}
	if cfg.Database.Name != "idms" {
		t.Errorf("db name should be preserved, got %s", cfg.Database.Name)
	}

	crit := cfg.Classifier.Criticality
	if crit["invoice"] != "high" || crit["receipt"] != "medium" || crit["contract"] != "critical" {
		t.Errorf("criticality merge: got %v", crit)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "service.toml", baseConfig)
	writeConfig(t, dir, "config.prod.toml", overlayConfig)
	chdir(t, t.TempDir())
	t.Setenv(config.EnvIDMSEnv, "prod")

	cfg, err := config.LoadFile(filepath.Join(dir, "service.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("overlay next to base file should apply, port = %d", cfg.Server.Port)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", minimalConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.ShutdownTimeoutDuration() != 30*time.Second {
		t.Errorf("shutdown_timeout: got %v, want 30s", cfg.ShutdownTimeoutDuration())
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level: got %s, want info", cfg.Logging.Level)
	}
	if cfg.Ingest.LockFile != "idms.lock" {
		t.Errorf("ingest lock_file: got %s, want idms.lock", cfg.Ingest.LockFile)
	}
	if cfg.Ingest.ResumeOnStartup {
		t.Error("ingest resume_on_startup should default to false")
	}
	if cfg.Ingest.ItemTimeoutDuration() != 5*time.Minute {
		t.Errorf("ingest item_timeout: got %v, want 5m", cfg.Ingest.ItemTimeoutDuration())
	}
	if cfg.Classifier.MaxAttempts != 2 {
		t.Errorf("classifier max_attempts: got %d, want 2", cfg.Classifier.MaxAttempts)
	}
	if cfg.Classifier.DefaultCriticality != "medium" {
		t.Errorf("classifier default_criticality: got %s, want medium", cfg.Classifier.DefaultCriticality)
	}
	if cfg.Metrics.Exporter != "prometheus" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics: got %s at %s, want prometheus at /metrics", cfg.Metrics.Exporter, cfg.Metrics.Path)
	}
	if cfg.Env() != "local" {
		t.Errorf("env: got %s, want local", cfg.Env())
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", minimalConfig)
	chdir(t, dir)

	t.Setenv("IDMS_SERVER_PORT", "7070")
	t.Setenv("IDMS_DB_HOST", "envhost")
	t.Setenv("IDMS_LOG_LEVEL", "warn")
	t.Setenv(config.EnvIngestResumeOnStartup, "true")
	t.Setenv(config.EnvIngestHashWorkers, "2")
	t.Setenv(config.EnvClassifierAPIKey, "sk-test")
	t.Setenv("IDMS_STORAGE_CONTAINER_NAME", "ingest")
	t.Setenv("IDMS_METRICS_EXPORTER", "none")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("server port: got %d, want 7070", cfg.Server.Port)
	}
	if cfg.Database.Host != "envhost" {
		t.Errorf("db host: got %s, want envhost", cfg.Database.Host)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("logging level: got %s, want warn", cfg.Logging.Level)
	}
	if !cfg.Ingest.ResumeOnStartup {
		t.Error("ingest resume_on_startup should be true")
	}
	if cfg.Ingest.HashWorkers != 2 {
		t.Errorf("ingest hash_workers: got %d, want 2", cfg.Ingest.HashWorkers)
	}
	if cfg.Classifier.APIKey != "sk-test" {
		t.Errorf("classifier api_key not applied")
	}
	if cfg.Storage.ContainerName != "ingest" {
		t.Errorf("storage container: got %s, want ingest", cfg.Storage.ContainerName)
	}
	if cfg.Metrics.Exporter != "none" {
		t.Errorf("metrics exporter: got %s, want none", cfg.Metrics.Exporter)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"bad shutdown timeout", "shutdown_timeout = \"soon\"\n", "shutdown_timeout"},
		{"bad item timeout", "[ingest]\nitem_timeout = \"forever\"\n", "item_timeout"},
		{"bad max file size", "[ingest]\nmax_file_size = \"lots\"\n", "max_file_size"},
		{"negative hash workers", "[ingest]\nhash_workers = -1\n", "hash_workers"},
		{"relative classifier url", "[classifier]\nbase_url = \"localhost\"\n", "base_url"},
		{"bad log format", "[logging]\nformat = \"xml\"\n", "format"},
		{"bad idle timeout", "[server]\nidle_timeout = \"later\"\n", "idle_timeout"},
		{"bad metrics exporter", "[metrics]\nexporter = \"statsd\"\n", "exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "config.toml", tt.extra+minimalConfig)
			chdir(t, dir)

			_, err := config.Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestServerTimeouts(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", "[server]\nwrite_timeout = \"45s\"\n"+minimalConfig)
	chdir(t, dir)

	t.Setenv(config.EnvServerIdleTimeout, "5m")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"read", cfg.Server.ReadTimeoutDuration(), 30 * time.Second},
		{"read header", cfg.Server.ReadHeaderTimeoutDuration(), 10 * time.Second},
		{"write from file", cfg.Server.WriteTimeoutDuration(), 45 * time.Second},
		{"idle from env", cfg.Server.IdleTimeoutDuration(), 5 * time.Minute},
		{"shutdown", cfg.Server.ShutdownTimeoutDuration(), 30 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s timeout: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr: got %s, want 0.0.0.0:8080", cfg.Server.Addr())
	}
}

func TestMissingRequired(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if _, err := config.Load(); err == nil {
		t.Error("expected error without database name")
	}
}
