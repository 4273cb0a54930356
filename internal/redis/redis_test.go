package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed tests")
	}
	client, err := Dial(&goredis.Options{Addr: addr}, "pdbot-test:"+time.Now().Format(time.RFC3339Nano)+":")
	if err != nil {
		t.Fatalf("dial redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientSetNX(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	t.Cleanup(func() { client.Del(context.Background(), "setnx") })

	ok, err := client.SetNX(ctx, "setnx", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first setnx: ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "setnx", time.Minute)
	if err != nil || ok {
		t.Fatalf("second setnx should not write: ok=%v err=%v", ok, err)
	}
	ttl, err := client.TTL(ctx, "setnx")
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s err=%v", ttl, err)
	}
}

func TestClientJSONRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	type payload struct {
		Flow string `json:"flow"`
	}
	if err := client.SetJSON(ctx, "json", payload{Flow: "get_file"}, time.Minute); err != nil {
		t.Fatalf("set json: %v", err)
	}
	var got payload
	found, err := client.GetJSON(ctx, "json", &got)
	if err != nil || !found || got.Flow != "get_file" {
		t.Fatalf("get json: found=%v got=%+v err=%v", found, got, err)
	}
	if err := client.Del(ctx, "json"); err != nil {
		t.Fatalf("del: %v", err)
	}
	found, err = client.GetJSON(ctx, "json", &got)
	if err != nil || found {
		t.Fatalf("expected miss, found=%v err=%v", found, err)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.SetJSON(context.Background(), "k", "v", 0); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if _, err := c.SetNX(context.Background(), "k", 0); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}
