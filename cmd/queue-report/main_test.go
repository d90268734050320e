package main

import (
	"testing"
	"time"

	"github.com/banshee-data/queue.report/internal/broadcast"
	"github.com/banshee-data/queue.report/internal/config"
	"github.com/banshee-data/queue.report/internal/occupancy"
	"github.com/banshee-data/queue.report/internal/queue"
)

func TestFlagDefaults(t *testing.T) {
	if *configPath != config.DefaultConfigPath {
		t.Errorf("config default = %q, want %q", *configPath, config.DefaultConfigPath)
	}
	if *listen != "" || *dbPathFlag != "" || *apiURL != "" {
		t.Errorf("override flags should default to empty, got listen=%q db=%q api=%q", *listen, *dbPathFlag, *apiURL)
	}
	if *devMode || *skipCheck {
		t.Error("dev and skip-migration-check should default to false")
	}
}

func TestApplyFlagsOverridesConfig(t *testing.T) {
	defer func(l, d, a string) { *listen, *dbPathFlag, *apiURL = l, d, a }(*listen, *dbPathFlag, *apiURL)

	file := "from-file.db"
	cfg := &config.Config{DBPath: &file}
	applyFlags(cfg)
	if got := cfg.GetDBPath(); got != "from-file.db" {
		t.Errorf("unset flag replaced db path: %q", got)
	}

	*listen, *dbPathFlag, *apiURL = ":9090", "flag.db", "http://camera.local/api?id=1"
	applyFlags(cfg)
	if cfg.GetListen() != ":9090" || cfg.GetDBPath() != "flag.db" || cfg.GetAPIURL() != "http://camera.local/api?id=1" {
		t.Errorf("flags not applied: listen=%q db=%q api=%q", cfg.GetListen(), cfg.GetDBPath(), cfg.GetAPIURL())
	}
}

func TestStatusPublisher(t *testing.T) {
	hub := broadcast.NewHub()
	defer hub.Close()
	id, c := hub.Subscribe()
	defer hub.Unsubscribe(id)

	at := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	statusPublisher(hub)(queue.StatusChange{
		LocationID: "shop", From: occupancy.Vacant, To: occupancy.VeryCrowded, Count: 7, Time: at,
	})

	select {
	case m := <-c:
		if m.Type != broadcast.TypeStatusChange {
			t.Errorf("type = %q, want %q", m.Type, broadcast.TypeStatusChange)
		}
		if !m.Timestamp.Equal(at) {
			t.Errorf("timestamp = %v, want %v", m.Timestamp, at)
		}
		sc, ok := m.Data.(queue.StatusChange)
		if !ok || sc.To != occupancy.VeryCrowded {
			t.Errorf("data = %#v", m.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}
