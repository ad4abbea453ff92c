// Package telemetry publishes the balance loop state over MQTT and accepts
// restart and drive commands from the same broker.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/balance"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/drive"
)

type Session interface {
	Snapshot() balance.Snapshot
	Restart() bool
	SetCommand(drive, steer int)
}

// Command is the payload accepted on <prefix>/command.
type Command struct {
	Drive int `json:"drive"`
	Steer int `json:"steer"`
}

type Telemetry struct {
	cfg     config.Telemetry
	session Session
}

func New(cfg config.Telemetry, session Session) *Telemetry {
	return &Telemetry{cfg: cfg, session: session}
}

func (t *Telemetry) topic(name string) string {
	return t.cfg.TopicPrefix + "/" + name
}

// Run connects to the broker and publishes until ctx is done.  With no
// broker configured it returns immediately.
func (t *Telemetry) Run(ctx context.Context) error {
	if t.cfg.Broker == "" {
		fmt.Println("MQTT: no broker configured, telemetry disabled")
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(t.cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "connecting to MQTT broker %s", t.cfg.Broker)
	}
	defer client.Disconnect(250)
	fmt.Println("MQTT: connected to", t.cfg.Broker)

	if token := client.Subscribe(t.topic("restart"), 0, func(_ mqtt.Client, msg mqtt.Message) {
		t.HandleRestart(msg.Payload())
	}); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "subscribing to restart")
	}
	if token := client.Subscribe(t.topic("command"), 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := t.HandleCommand(msg.Payload()); err != nil {
			fmt.Println("MQTT: bad command:", err)
		}
	}); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "subscribing to command")
	}

	interval := time.Duration(t.cfg.IntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stateTopic := t.topic("state")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		payload, err := t.StatePayload()
		if err != nil {
			return err
		}
		// Fire and forget: a slow broker mustn't hold up the next sample.
		client.Publish(stateTopic, 0, false, payload)
	}
}

func (t *Telemetry) StatePayload() ([]byte, error) {
	payload, err := json.Marshal(t.session.Snapshot())
	if err != nil {
		return nil, errors.Wrap(err, "encoding snapshot")
	}
	return payload, nil
}

func (t *Telemetry) HandleRestart(_ []byte) {
	if t.session.Restart() {
		fmt.Println("MQTT: restart requested")
	} else {
		fmt.Println("MQTT: ignoring restart, robot hasn't fallen")
	}
}

// HandleCommand sets the drive and steer set-points, clamped to the ranges the
// remote controls can reach.
func (t *Telemetry) HandleCommand(payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return errors.Wrap(err, "decoding command")
	}
	t.session.SetCommand(clamp(cmd.Drive, drive.MaxSpeed), clamp(cmd.Steer, drive.MaxSteer))
	return nil
}

func clamp(v, limit int) int {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
