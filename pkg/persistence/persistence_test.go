package persistence

import (
	"os"
	"path/filepath"
	"testing"
)

type testPayload struct {
	Placed int64 `json:"placed"`
	Filled int64 `json:"filled"`
}

func TestSaveLoadRoundtrip(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("maker", "BTC-USDT-PERP", "counters")

	in := testPayload{Placed: 42, Filled: 7}
	if err := store.Save(&in); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	var out testPayload
	if err := store.Load(&out); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if out != in {
		t.Fatalf("读回数据不一致: %+v != %+v", out, in)
	}
}

func TestLoadNotExists(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("maker", "none", "counters")

	var out testPayload
	if err := store.Load(&out); err != ErrNotExists {
		t.Fatalf("不存在时应返回 ErrNotExists, 实际 %v", err)
	}
}

func TestLoadCorruptTreatedAsMissing(t *testing.T) {
	dir := t.TempDir()
	svc := NewJSONFileService(dir)
	store := svc.NewStore("maker", "bad", "counters")

	if err := store.Save(&testPayload{Placed: 1}); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	// 写坏文件
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("找不到数据文件: %v", err)
	}
	path := filepath.Join(dir, entries[0].Name())
	if err := os.WriteFile(path, []byte("{corrupt"), 0o644); err != nil {
		t.Fatalf("写坏文件失败: %v", err)
	}

	var out testPayload
	if err := store.Load(&out); err != ErrNotExists {
		t.Fatalf("损坏文件应按不存在处理, 实际 %v", err)
	}
}

func TestKeySanitized(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("maker", "BTC/USDT:PERP", "counters")

	if err := store.Save(&testPayload{}); err != nil {
		t.Fatalf("特殊字符 key 保存失败: %v", err)
	}
}
