package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("WS_PONG_WAIT", "30s")
	t.Setenv("WS_PING_INTERVAL", "20s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RATE_AUTH_MAX", "3")
	t.Setenv("RATE_UPLOAD_WINDOW", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.JWTSecret != "s3cret" || cfg.Port != "8080" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.WS.PongWait != 30*time.Second || cfg.WS.PingInterval != 20*time.Second {
		t.Fatalf("durations not parsed: %+v", cfg.WS)
	}
	if cfg.WS.AuthTimeout != 10*time.Second || cfg.JWTTTL != 24*time.Hour {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if got := cfg.Brokers(); len(got) != 2 || got[1] != "k2:9092" {
		t.Fatalf("brokers = %v", got)
	}
	rl := cfg.RateLimits
	if rl.AuthMax != 3 || rl.UploadWindow != 2*time.Minute {
		t.Fatalf("rate limits not read from env: %+v", rl)
	}
	if rl.AuthWindow != 15*time.Minute || rl.ReadMax != 100 || rl.Window != time.Minute {
		t.Fatalf("rate limit defaults not applied: %+v", rl)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			JWTSecret:   "x",
			StoreDriver: "memory",
			WS:          WSConfig{PingInterval: time.Second, PongWait: 2 * time.Second, EventsPerSecond: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
		{"mongo without postgres", func(c *Config) { c.StoreDriver = "mongo" }},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }},
		{"ping after pong", func(c *Config) { c.WS.PingInterval = 3 * time.Second }},
		{"no event budget", func(c *Config) { c.WS.EventsPerSecond = 0 }},
		{"negative rate limit", func(c *Config) { c.RateLimits.WriteMax = -1 }},
		{"negative rate window", func(c *Config) { c.RateLimits.Window = -time.Second }},
	}

	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
