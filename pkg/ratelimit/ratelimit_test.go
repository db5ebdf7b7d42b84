package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurst(t *testing.T) {
	tb := NewTokenBucket(3, 1)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("第 %d 次应放行", i+1)
		}
	}
	if tb.Allow() {
		t.Fatal("桶空后应拒绝")
	}
	if tb.Remaining() != 0 {
		t.Fatalf("剩余令牌应为 0, 实际 %d", tb.Remaining())
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(1, 10)
	if !tb.Allow() {
		t.Fatal("首次应放行")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("等待补充失败: %v", err)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(1, 0) // 永不补充
	tb.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Fatal("ctx 超时应返回错误")
	}
}
