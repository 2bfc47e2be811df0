// lora-echo: Echo responder for link testing.
//
// The radio listens continuously; every received packet is retransmitted
// unchanged, and after the retransmission completes the receiver is
// re-armed. A remote station running send-recv can use this to measure the
// round trip.
//
//	./lora-echo -c us915 -v
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/herlein/golora/pkg/config"
	"github.com/herlein/golora/pkg/sx1262"
	"github.com/herlein/golora/pkg/transport"
)

func main() {
	profileRef := flag.String("c", "us915", "Profile name or JSON file path")
	verbose := flag.Bool("v", false, "Verbose output")
	statusEvery := flag.Duration("status", 5*time.Second, "Status report interval (0 = off)")

	spiPort := flag.String("spi", "", "SPI port name (empty = first available)")
	busyPin := flag.String("busy", "GPIO24", "BUSY pin name")
	resetPin := flag.String("reset", "GPIO17", "NRESET pin name")
	dio1Pin := flag.String("dio1", "GPIO25", "DIO1 interrupt pin name")

	flag.Parse()

	profile, err := config.Load(*profileRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load profile: %v\n", err)
		os.Exit(1)
	}
	cfg, err := profile.ToRadioConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	bus, err := transport.Open(transport.Options{
		Port:     *spiPort,
		BusyPin:  *busyPin,
		ResetPin: *resetPin,
		DIO1Pin:  *dio1Pin,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open transport: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	radio, err := sx1262.New(bus, cfg, sx1262.ModeEcho)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		radio.SetLog(func(format string, v ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", v...)
		})
	}

	if err := radio.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize radio: %v\n", err)
		os.Exit(1)
	}
	radio.Start()
	defer radio.Close()

	if err := bus.WatchDIO1(radio.OnEdge); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to watch DIO1: %v\n", err)
		os.Exit(1)
	}

	if err := radio.StartReceive(sx1262.RxTimeoutContinuous); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enter RX mode: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Echoing on %s (Ctrl+C to stop)\n", profile)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Periodic status report, cosmetic only.
	var statusTick <-chan time.Time
	if *statusEvery > 0 {
		ticker := time.NewTicker(*statusEvery)
		defer ticker.Stop()
		statusTick = ticker.C
	}

	echoed := 0
	for {
		select {
		case <-sigChan:
			fmt.Printf("\nEchoed %d packets\n", echoed)
			radio.Abort()
			return

		case pkt := <-radio.Rx():
			echoed++
			fmt.Printf("[%s] echo #%d: %d bytes, RSSI %d dBm, SNR %d dB\n",
				time.Now().Format("15:04:05.000"), echoed, pkt.Length, pkt.RssiDBm, pkt.SnrDB)
			if *verbose {
				fmt.Printf("  %s\n", hex.EncodeToString(pkt.Payload))
			}

		case ev := <-radio.Events():
			if *verbose {
				fmt.Printf("  [event] %s (state %s)\n", ev, radio.State())
			}
			if radio.State() == sx1262.StateFault {
				fmt.Fprintf(os.Stderr, "Error: Radio fault: %v\n", radio.FaultReason())
				os.Exit(1)
			}

		case <-statusTick:
			if status, err := radio.Device().GetStatus(); err == nil {
				fmt.Printf("  [status] driver=%s chip: %s\n", radio.State(), status)
			}
		}
	}
}
