package redisconn

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestConnect(t *testing.T) {
	s := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+s.Addr())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("SET failed: %v", err)
	}
	if got, _ := s.Get("k"); got != "v" {
		t.Errorf("stored value = %q, want v", got)
	}
}

func TestConnect_Errors(t *testing.T) {
	if _, err := Connect(context.Background(), "not a url"); err == nil {
		t.Error("expected parse error")
	}

	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()
	if _, err := Connect(context.Background(), "redis://"+addr); err == nil {
		t.Error("expected connection error")
	}
}
