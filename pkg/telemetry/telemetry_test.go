package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/balance"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/config"
)

type fakeSession struct {
	snap         balance.Snapshot
	restartOK    bool
	restarts     int
	drive, steer int
}

func (f *fakeSession) Snapshot() balance.Snapshot { return f.snap }

func (f *fakeSession) Restart() bool {
	f.restarts++
	return f.restartOK
}

func (f *fakeSession) SetCommand(drive, steer int) {
	f.drive, f.steer = drive, steer
}

func TestCommandPayload(t *testing.T) {
	s := &fakeSession{}
	tm := New(config.Telemetry{}, s)

	if err := tm.HandleCommand([]byte(`{"drive": 150, "steer": -40}`)); err != nil {
		t.Fatal(err)
	}
	if s.drive != 150 || s.steer != -40 {
		t.Fatalf("Got %d/%d", s.drive, s.steer)
	}

	if err := tm.HandleCommand([]byte(`{"drive": -5000, "steer": 999}`)); err != nil {
		t.Fatal(err)
	}
	if s.drive != -600 || s.steer != 170 {
		t.Fatalf("Expected clamped command, got %d/%d", s.drive, s.steer)
	}

	if err := tm.HandleCommand([]byte(`not json`)); err == nil {
		t.Fatal("Expected an error for a bad payload")
	}
	if s.drive != -600 || s.steer != 170 {
		t.Fatal("Bad payload changed the command")
	}
}

func TestRestart(t *testing.T) {
	s := &fakeSession{}
	tm := New(config.Telemetry{}, s)
	tm.HandleRestart(nil)
	s.restartOK = true
	tm.HandleRestart([]byte("1"))
	if s.restarts != 2 {
		t.Fatalf("Expected both requests passed on, got %d", s.restarts)
	}
}

func TestStatePayload(t *testing.T) {
	s := &fakeSession{snap: balance.Snapshot{Status: balance.Running, LoopCount: 42, BasePower: 12.5}}
	tm := New(config.Telemetry{}, s)
	payload, err := tm.StatePayload()
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["loopCount"] != float64(42) || decoded["basePower"] != 12.5 {
		t.Fatalf("Unexpected payload %s", payload)
	}
}

func TestDisabledWithoutBroker(t *testing.T) {
	tm := New(config.Telemetry{TopicPrefix: "balancer"}, &fakeSession{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tm.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if ctx.Err() != nil {
		t.Fatal("Run should return straight away with no broker")
	}
	if tm.topic("state") != "balancer/state" {
		t.Fatalf("Topic %q", tm.topic("state"))
	}
}
