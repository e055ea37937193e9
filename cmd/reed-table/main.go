// Command reed-table watches four reed switches, gives local feedback and
// sends X10 commands through a CM17A transmitter when a switch is held.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/reed-table/internal/cm17a"
	"github.com/sweeney/reed-table/internal/control"
	"github.com/sweeney/reed-table/internal/gpio"
	"github.com/sweeney/reed-table/internal/logic"
	"github.com/sweeney/reed-table/internal/mqtt"
	"github.com/sweeney/reed-table/internal/rfxtrx"
	"github.com/sweeney/reed-table/internal/status"
)

type options struct {
	chip      string
	pins      gpio.Pins
	fast      time.Duration
	idle      time.Duration
	alert     time.Duration
	poll      time.Duration
	channels  [logic.NumChannels]cm17a.Command
	broker    string
	heartbeat time.Duration
	rfxtrx    string
	demoIdle  bool
}

func main() {
	opts := options{pins: gpio.DefaultPins}

	flag.StringVar(&opts.chip, "chip", gpio.DefaultChip, "GPIO chip name")
	switchPins := flag.String("pin-switches", formatPins(gpio.DefaultPins.Switches), "BCM pins of switches 1-4")
	ledPins := flag.String("pin-leds", formatPins(gpio.DefaultPins.LEDs), "BCM pins of indicators 1-4")
	flag.IntVar(&opts.pins.Bell, "pin-bell", gpio.DefaultPins.Bell, "BCM pin of the audio indicator")
	flag.IntVar(&opts.pins.Heartbeat, "pin-heartbeat", gpio.DefaultPins.Heartbeat, "BCM pin of the heartbeat LED")
	flag.IntVar(&opts.pins.Option, "pin-option", gpio.DefaultPins.Option, "BCM pin of the demo option switch")
	flag.IntVar(&opts.pins.DTR, "pin-dtr", gpio.DefaultPins.DTR, "BCM pin driving CM17A DTR")
	flag.IntVar(&opts.pins.RTS, "pin-rts", gpio.DefaultPins.RTS, "BCM pin driving CM17A RTS")
	flag.DurationVar(&opts.fast, "fast", control.DefaultFast, "Sampling tick period")
	flag.DurationVar(&opts.idle, "idle", control.DefaultIdle, "Slow tick period while idle")
	flag.DurationVar(&opts.alert, "alert", control.DefaultAlert, "Slow tick period while pressed")
	flag.DurationVar(&opts.poll, "poll", control.DefaultPoll, "Main loop polling interval")
	house := flag.String("house", "M", "X10 house code (A-P)")
	channels := flag.String("channels", "11:OFF,6:OFF,6:ON,11:ON", "unit:action for switches 1-4")
	repeat := flag.Int("repeat", 5, "Times each command is sent")
	flag.StringVar(&opts.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	flag.DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&opts.rfxtrx, "rfxtrx", "", "RFXtrx433 serial port to mirror commands on (empty to disable)")
	flag.BoolVar(&opts.demoIdle, "demo-while-idle", false, "Enter demo mode whenever the option switch is on, not just at startup")
	printState := flag.Bool("print-state", false, "Print current state and exit")

	flag.Parse()

	var err error
	if opts.pins.Switches, err = parsePins(*switchPins); err != nil {
		log.Fatalf("fatal: -pin-switches: %v", err)
	}
	if opts.pins.LEDs, err = parsePins(*ledPins); err != nil {
		log.Fatalf("fatal: -pin-leds: %v", err)
	}
	if opts.channels, err = parseChannels(*house, *channels, *repeat); err != nil {
		log.Fatalf("fatal: -channels: %v", err)
	}

	if err := run(opts, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(opts options, printState bool) error {
	board, err := gpio.NewRealBoard(opts.chip, opts.pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(opts))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	if printState {
		levels, err := board.Switches.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		tracker.Apply(func(s *status.State) { s.Levels = levels })
		fmt.Println(string(status.FormatJSON(tracker.Snapshot())))
		return nil
	}

	firecracker := cm17a.NewTransmitter(board.DTR, board.RTS, cm17a.DefaultTiming, nil)
	if err := firecracker.Reset(); err != nil {
		return fmt.Errorf("reset transmitter: %w", err)
	}
	var tx control.Transmitter = firecracker
	if opts.rfxtrx != "" {
		mirror, err := rfxtrx.Open(opts.rfxtrx)
		if err != nil {
			return err
		}
		defer mirror.Close()
		tx = control.Multi{firecracker, mirror}
		log.Printf("mirroring commands on rfxtrx %s", opts.rfxtrx)
	}

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if opts.broker != "" {
		p, err := mqtt.NewRealPublisher(opts.broker)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
		tracker.SetMQTTConnected(p.IsConnected())
	}

	snap := tracker.Snapshot()
	publishSystem(publisher, mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})

	ctrl := control.New(board.Board, tracker, tx, publisher, control.Config{
		Channels:      opts.channels,
		Fast:          opts.fast,
		Idle:          opts.idle,
		Alert:         opts.alert,
		Poll:          opts.poll,
		DemoWhileIdle: opts.demoIdle,
	})

	ctx, cancel := context.WithCancel(context.Background())
	loopErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctrl.Dispatcher(nil).Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil {
			loopErr <- err
		}
	}()

	log.Printf("started: fast=%v idle=%v alert=%v poll=%v broker=%q heartbeat=%v",
		opts.fast, opts.idle, opts.alert, opts.poll, opts.broker, opts.heartbeat)
	for i, c := range opts.channels {
		log.Printf("switch %d: %s", i+1, c)
	}

	var hbTick <-chan time.Time
	if opts.heartbeat > 0 {
		ticker := time.NewTicker(opts.heartbeat)
		defer ticker.Stop()
		hbTick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(publisher, mqttStatus, tracker, time.Now, hbTick, sigCh, loopErr)

	// Stop ticks and the main loop before the lines are released.
	cancel()
	wg.Wait()
	return err
}

// runLoop publishes heartbeats until a signal arrives or the main loop
// stops, then publishes SHUTDOWN. publisher and mqttStatus may be nil.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal, stopped <-chan error) error {
	shutdown := func(reason string) {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		snap := tracker.Snapshot()
		publishSystem(publisher, mqtt.SystemEvent{
			Timestamp:  now(),
			Event:      "SHUTDOWN",
			Reason:     reason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
		})
	}

	for {
		select {
		case err := <-stopped:
			log.Printf("main loop stopped: %v", err)
			shutdown("MAIN_LOOP_ERROR")
			return fmt.Errorf("main loop: %w", err)

		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case <-heartbeat:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v presses=%d transmissions=%d failures=%d",
				snap.Uptime().Truncate(time.Second), snap.Counts.Presses, snap.Counts.Transmissions, snap.Counts.TransmitFails)
			publishSystem(publisher, mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			})
		}
	}
}

func publishSystem(publisher mqtt.Publisher, event mqtt.SystemEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", strings.ToLower(event.Event), err)
	} else {
		log.Printf("published %s event", strings.ToLower(event.Event))
	}
}

func statusConfig(opts options) status.Config {
	cfg := status.Config{
		FastMs:      opts.fast.Milliseconds(),
		IdleMs:      opts.idle.Milliseconds(),
		AlertMs:     opts.alert.Milliseconds(),
		PollMs:      opts.poll.Milliseconds(),
		HeartbeatMs: opts.heartbeat.Milliseconds(),
		Broker:      opts.broker,
		RFXtrx:      opts.rfxtrx,
	}
	for _, c := range opts.channels {
		cfg.Channels = append(cfg.Channels, c.String())
	}
	return cfg
}

// parsePins parses four comma-separated line offsets.
func parsePins(s string) ([logic.NumChannels]int, error) {
	var pins [logic.NumChannels]int
	fields := strings.Split(s, ",")
	if len(fields) != logic.NumChannels {
		return pins, fmt.Errorf("want %d pins, got %d", logic.NumChannels, len(fields))
	}
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || n < 0 {
			return pins, fmt.Errorf("bad pin %q", f)
		}
		pins[i] = n
	}
	return pins, nil
}

func formatPins(pins [logic.NumChannels]int) string {
	s := make([]string, len(pins))
	for i, p := range pins {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}

// parseChannels parses "unit:action" for each switch, e.g. "11:OFF,6:ON,...".
func parseChannels(house, s string, repeat int) ([logic.NumChannels]cm17a.Command, error) {
	var cmds [logic.NumChannels]cm17a.Command
	if len(house) != 1 {
		return cmds, fmt.Errorf("%w: %q", cm17a.ErrInvalidHouse, house)
	}
	fields := strings.Split(s, ",")
	if len(fields) != logic.NumChannels {
		return cmds, fmt.Errorf("want %d channels, got %d", logic.NumChannels, len(fields))
	}
	for i, f := range fields {
		unitStr, actionStr, ok := strings.Cut(strings.TrimSpace(f), ":")
		if !ok {
			return cmds, fmt.Errorf("channel %d: want unit:action, got %q", i+1, f)
		}
		unit, err := strconv.Atoi(unitStr)
		if err != nil {
			return cmds, fmt.Errorf("channel %d: %w: %q", i+1, cm17a.ErrInvalidUnit, unitStr)
		}
		action, err := cm17a.ParseAction(actionStr)
		if err != nil {
			return cmds, fmt.Errorf("channel %d: %w", i+1, err)
		}
		cmds[i] = cm17a.Command{
			House:  cm17a.NormalizeHouse(house[0]),
			Unit:   unit,
			Action: action,
			Repeat: repeat,
		}
		if err := cmds[i].Validate(); err != nil {
			return cmds, fmt.Errorf("channel %d: %w", i+1, err)
		}
	}
	return cmds, nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
