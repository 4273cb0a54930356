package dedup

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"pdbot/internal/redis"

	goredis "github.com/redis/go-redis/v9"
)

func TestMemorySeen(t *testing.T) {
	m := NewMemory(time.Minute, 0, nil)
	ctx := context.Background()

	dup, err := m.Seen(ctx, "whatsapp:1", "m1")
	if err != nil || dup {
		t.Fatalf("first delivery flagged duplicate: dup=%v err=%v", dup, err)
	}
	dup, _ = m.Seen(ctx, "whatsapp:1", "m1")
	if !dup {
		t.Fatalf("redelivery not detected")
	}
	dup, _ = m.Seen(ctx, "whatsapp:2", "m1")
	if dup {
		t.Fatalf("ids must be scoped per sender")
	}
	dup, _ = m.Seen(ctx, "whatsapp:1", "")
	if dup {
		t.Fatalf("empty id must never be a duplicate")
	}
}

func TestMemoryWindowExpires(t *testing.T) {
	m := NewMemory(time.Minute, 0, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Seen(ctx, "s", "m1")
	now = now.Add(2 * time.Minute)
	dup, _ := m.Seen(ctx, "s", "m1")
	if dup {
		t.Fatalf("id should expire after the window")
	}

	now = now.Add(2 * time.Minute)
	if n := m.sweep(); n != 1 {
		t.Fatalf("expected idle sender swept, got %d", n)
	}
}

func TestMemoryBoundedPerSender(t *testing.T) {
	m := NewMemory(time.Hour, 3, nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		m.Seen(ctx, "s", fmt.Sprintf("m%d", i))
	}
	if dup, _ := m.Seen(ctx, "s", "m0"); dup {
		t.Fatalf("oldest id should have been evicted")
	}
	if dup, _ := m.Seen(ctx, "s", "m3"); !dup {
		t.Fatalf("recent id should still be remembered")
	}
}

func TestMemoryForget(t *testing.T) {
	m := NewMemory(time.Minute, 0, nil)
	ctx := context.Background()

	m.Seen(ctx, "s", "m1")
	m.Seen(ctx, "s", "m2")
	if err := m.Forget(ctx, "s", "m1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if dup, _ := m.Seen(ctx, "s", "m1"); dup {
		t.Fatalf("forgotten id must be processed again")
	}
	if dup, _ := m.Seen(ctx, "s", "m2"); !dup {
		t.Fatalf("other ids must stay recorded")
	}
	if err := m.Forget(ctx, "unknown", "m1"); err != nil {
		t.Fatalf("forget for unknown sender: %v", err)
	}
}

func TestRedisSeen(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := redis.Dial(&goredis.Options{Addr: addr}, "pdbot-test:")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	d := NewRedis(client, time.Minute)
	ctx := context.Background()
	id := fmt.Sprintf("m-%d", time.Now().UnixNano())
	t.Cleanup(func() { client.Del(context.Background(), redisKeyPrefix+"s:"+id) })

	if dup, err := d.Seen(ctx, "s", id); err != nil || dup {
		t.Fatalf("first delivery: dup=%v err=%v", dup, err)
	}
	if dup, err := d.Seen(ctx, "s", id); err != nil || !dup {
		t.Fatalf("redelivery: dup=%v err=%v", dup, err)
	}
	if err := d.Forget(ctx, "s", id); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if dup, err := d.Seen(ctx, "s", id); err != nil || dup {
		t.Fatalf("after forget: dup=%v err=%v", dup, err)
	}
}
