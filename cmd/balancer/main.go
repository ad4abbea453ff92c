package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/balance"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/remote"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/screen"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/sound"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/telemetry"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/tunable"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/turret"
)

var CLI struct {
	Config   string `help:"Config file." default:"/cfg/balancer.yaml" type:"path"`
	Simulate bool   `help:"Balance a simulated robot instead of the hardware."`
	Verbose  bool   `short:"v" help:"Log every tick."`
	Broker   string `help:"MQTT broker URL, overrides the config file."`
}

func main() {
	fmt.Print("---- Balancer ----\n\n")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	kong.Parse(&CLI, kong.Description("Two-wheeled self-balancing robot controller."))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	cfg.Simulate = cfg.Simulate || CLI.Simulate
	cfg.Verbose = cfg.Verbose || CLI.Verbose
	if CLI.Broker != "" {
		cfg.Telemetry.Broker = CLI.Broker
	}
	if err := config.WriteInUse(CLI.Config, cfg); err != nil {
		fmt.Println("Failed to write in-use config:", err)
	}

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		s := <-signals
		log.Println("Signal: ", s)
		cancel()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()

	hw := openHardware(cfg)

	tunables := &tunable.Tunables{}
	params := balance.NewParams(cfg, tunables)
	session := balance.NewSession(hw, balance.SystemClock{}, params)
	restart := func() {
		if session.Restart() {
			fmt.Println("BAL: restart requested")
		}
	}

	scr := screen.New(cfg.Devices.EyesDir, tunables, func() int {
		return session.Snapshot().BatteryMV
	})
	player := sound.New(cfg.Devices.SoundsDir)
	session.AddListener(func(e balance.Event) {
		fmt.Printf("BAL: %v (light %v", e.Status, e.Light)
		if e.Attempt > 0 {
			fmt.Printf(", calibration attempt %d failed", e.Attempt)
		}
		fmt.Println(")")
	})
	session.AddListener(scr.OnEvent)
	session.AddListener(player.OnEvent)

	var wg sync.WaitGroup
	goLoop := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	goLoop(func() { scr.Loop(ctx, cfg.Devices.Framebuffer) })

	pad := remote.NewJoystick(tunables, restart)
	keys := remote.NewKeyboard(restart, os.Stdout)
	// Joystick reads block until the next event so we don't wait for it on
	// the way out.
	go runJoystick(ctx, cfg.Devices.Joystick, pad)
	goLoop(func() { runSerialRemote(ctx, cfg.Devices.SerialRemote, keys) })

	gun := turret.New(hw)
	controller := remote.NewController(session, gun, pad, keys)
	controller.OnFace = scr.ShowFace
	goLoop(func() { controller.Run(ctx) })

	tm := telemetry.New(cfg.Telemetry, session)
	goLoop(func() {
		if err := tm.Run(ctx); err != nil {
			fmt.Println("MQTT: telemetry stopped:", err)
		}
	})

	err = session.Run(ctx)
	if err != nil {
		fmt.Println("BAL: balance loop failed:", err)
	}
	cancel()
	gun.Wait()
	wg.Wait()
	hw.Shutdown()
	if err != nil {
		os.Exit(1)
	}
}

func openHardware(cfg config.Config) hardware.Interface {
	if !cfg.Simulate {
		hw, err := hardware.New(cfg.Devices)
		if err == nil {
			return hw
		}
		fmt.Println("Failed to open hardware:", err)
		if os.Getenv("IGNORE_MISSING_HARDWARE") != "true" {
			panic(err)
		}
	}
	fmt.Println("Using simulated robot")
	return hardware.NewSim(hardware.SimOptions{
		WheelDiameterCM: cfg.WheelDiameterCM,
		GyroBias:        cfg.Sim.GyroBias,
		GyroNoise:       cfg.Sim.GyroNoise,
		InitialTilt:     cfg.Sim.InitialTilt,
		Seed:            time.Now().UnixNano(),
	})
}

// runJoystick keeps trying to open the joystick until ctx is done; the pad
// may be paired after we start.
func runJoystick(ctx context.Context, device string, pad *remote.Joystick) {
	for ctx.Err() == nil {
		j, err := joystick.NewJoystick(device)
		if err != nil {
			fmt.Printf("Failed to open joystick: %v.\n", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		fmt.Printf("Opened joystick\n")
		events := make(chan *joystick.Event)
		go func() {
			for e := range events {
				pad.OnEvent(e)
			}
		}()
		err = j.Loop(ctx, events)
		fmt.Printf("Joystick failed: %v\n", err)
	}
}

func runSerialRemote(ctx context.Context, device string, keys *remote.Keyboard) {
	if device == "" {
		return
	}
	for ctx.Err() == nil {
		port, err := remote.OpenSerial(device)
		if err != nil {
			fmt.Printf("Failed to open serial remote: %v.\n", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		fmt.Println("Opened serial remote", device)
		err = keys.Loop(ctx, port)
		_ = port.Close()
		if ctx.Err() == nil {
			fmt.Printf("Serial remote failed: %v\n", err)
		}
	}
}
