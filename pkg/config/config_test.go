package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写配置文件失败: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
venue:
  rest_url: https://api.example.com
  ws_url: wss://stream.example.com/ws
instrument:
  symbol: BTC-USDT-PERP
maker:
  mode: both
  order_size: "0.01"
  target_distance_bp: 20
log_level: debug
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Venue.RestURL != "https://api.example.com" {
		t.Fatalf("rest_url 错误: %s", cfg.Venue.RestURL)
	}
	if cfg.Instrument.Symbol != "BTC-USDT-PERP" {
		t.Fatalf("symbol 错误: %s", cfg.Instrument.Symbol)
	}
	// 默认值
	if cfg.Instrument.TickSize != "0.1" {
		t.Fatalf("tick_size 默认值错误: %s", cfg.Instrument.TickSize)
	}
	if cfg.Feed.BaseReconnectDelayMs != 1000 {
		t.Fatalf("base_reconnect_delay_ms 默认值错误: %d", cfg.Feed.BaseReconnectDelayMs)
	}
	if cfg.Feed.MaxReconnectAttempts != 10 {
		t.Fatalf("max_reconnect_attempts 默认值错误: %d", cfg.Feed.MaxReconnectAttempts)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_MAKER_KEY", "deadbeef")
	path := writeConfig(t, `
venue:
  rest_url: https://api.example.com
  ws_url: wss://stream.example.com/ws
auth:
  signing_key: ${TEST_MAKER_KEY}
instrument:
  symbol: BTC-USDT-PERP
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Auth.SigningKey != "deadbeef" {
		t.Fatalf("环境变量应被展开, 实际 %q", cfg.Auth.SigningKey)
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"缺 rest_url", "venue:\n  ws_url: wss://x\ninstrument:\n  symbol: A\n"},
		{"缺 ws_url", "venue:\n  rest_url: https://x\ninstrument:\n  symbol: A\n"},
		{"缺 symbol", "venue:\n  rest_url: https://x\n  ws_url: wss://x\n"},
	}
	for _, tc := range cases {
		path := writeConfig(t, tc.content)
		if _, err := LoadFromFile(path); err == nil {
			t.Fatalf("%s: 应返回错误", tc.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("文件不存在应返回错误")
	}
}
