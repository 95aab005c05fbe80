package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: journal\n"))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.App.Name != "journal" {
		t.Fatalf("app.name 期望 journal, 实际 %s", cfg.App.Name)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Fatalf("默认 backend 应为 postgres, 实际 %s", cfg.Storage.Backend)
	}
	if cfg.Filters.DefaultWindow != "all" || cfg.Filters.MissingNumbers != "zero" {
		t.Fatalf("filters 默认值不正确: %+v", cfg.Filters)
	}
	if cfg.Filters.Lookback != 0 {
		t.Fatalf("filters.lookback 默认不应截断历史, 实际 %s", cfg.Filters.Lookback)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("scheduler.interval 期望 5m, 实际 %s", cfg.Scheduler.Interval)
	}
	if cfg.ResolveMaxPoints(0) != 100000 || cfg.ResolveMaxPoints(42) != 42 {
		t.Fatal("ResolveMaxPoints 行为不正确")
	}
}

func TestLoadFilterDefaults(t *testing.T) {
	body := `
filters:
  default_window: 30d
  missing_numbers: fail
  min_defaults:
    riskReward: 0
    score: 0
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Filters.DefaultWindow != "30d" || cfg.Filters.MissingNumbers != "fail" {
		t.Fatalf("filters 未覆盖: %+v", cfg.Filters)
	}
	if _, ok := cfg.Filters.MinDefaults["riskreward"]; !ok {
		t.Fatalf("min_defaults 键应被小写化: %+v", cfg.Filters.MinDefaults)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TJOURNAL_STORAGE_BACKEND", "redis")
	t.Setenv("TJOURNAL_REDIS_ADDR", "cache:6379")

	cfg, err := Load(writeConfig(t, "app:\n  name: journal\n"))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Storage.Backend != BackendRedis || cfg.Redis.Addr != "cache:6379" {
		t.Fatalf("环境变量未生效: %+v %+v", cfg.Storage, cfg.Redis)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown backend":  "storage:\n  backend: sqlite\n",
		"bad missing mode": "filters:\n  missing_numbers: maybe\n",
		"zero interval":    "scheduler:\n  interval: 0s\n",
		"telegram no token": `
alerting:
  telegram:
    enabled: true
    chat_id: "1"
`,
		"vault without rpc": `
vaults:
  contracts:
    SUSDE: "0x9D39A5DE30e57443BfF2A8307A4256c8797A3497"
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("期望校验失败")
			}
		})
	}
}
