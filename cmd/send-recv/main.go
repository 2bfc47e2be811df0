// send-recv: Example program for sending and receiving LoRa packets with an
// SX1262 module.
//
// This tool configures the radio from a profile and then either transmits
// data from the command line or listens for packets and displays them.
//
// Examples:
//
//	# Receive mode - listen for packets and display them
//	./send-recv -m recv -c us915
//
//	# Send mode - transmit data from command line
//	./send-recv -m send -c us915 -data "Hello World"
//
//	# Send mode - transmit hex data
//	./send-recv -m send -c etc/lora/mylink.json -hex "DEADBEEF"
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/herlein/golora/pkg/config"
	"github.com/herlein/golora/pkg/sx1262"
	"github.com/herlein/golora/pkg/transport"
)

func main() {
	// Parse command line flags
	mode := flag.String("m", "", "Mode: 'send' or 'recv' (required)")
	profileRef := flag.String("c", "us915", "Profile name or JSON file path")
	verbose := flag.Bool("v", false, "Verbose output")

	spiPort := flag.String("spi", "", "SPI port name (empty = first available)")
	busyPin := flag.String("busy", "GPIO24", "BUSY pin name")
	resetPin := flag.String("reset", "GPIO17", "NRESET pin name")
	dio1Pin := flag.String("dio1", "GPIO25", "DIO1 interrupt pin name")

	// Send mode options
	dataStr := flag.String("data", "", "Data to send (ASCII string)")
	hexStr := flag.String("hex", "", "Data to send (hex encoded)")

	// Receive mode options
	timeout := flag.Duration("timeout", 0, "Receive window (0 = continuous)")
	count := flag.Int("count", 0, "Number of packets to receive (0 = infinite)")
	rawOutput := flag.Bool("raw", false, "Output raw hex only (for piping)")

	flag.Parse()

	*mode = strings.ToLower(*mode)
	if *mode != "send" && *mode != "recv" {
		fmt.Fprintln(os.Stderr, "Error: Mode (-m) is required. Use 'send' or 'recv'")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Load profile
	profile, err := config.Load(*profileRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load profile: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Printf("Profile: %s\n", profile)
	}

	cfg, err := profile.ToRadioConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Open the bus
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

	radioMode := sx1262.ModeReceiveOnly
	radio, err := sx1262.New(bus, cfg, radioMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		radio.SetLog(func(format string, v ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", v...)
		})
	}

	if *verbose {
		fmt.Println("Resetting and applying baseline configuration...")
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

	if *verbose {
		if status, err := radio.Device().GetStatus(); err == nil {
			fmt.Printf("Chip status: %s\n", status)
		}
	}

	switch *mode {
	case "send":
		runSendMode(radio, *dataStr, *hexStr, *verbose)
	case "recv":
		runRecvMode(radio, *timeout, *count, *verbose, *rawOutput)
	}
}

func runSendMode(radio *sx1262.Radio, dataStr, hexStr string, verbose bool) {
	var data []byte

	if hexStr != "" {
		var err error
		data, err = hex.DecodeString(hexStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid hex string: %v\n", err)
			os.Exit(1)
		}
	} else if dataStr != "" {
		data = []byte(dataStr)
	} else {
		fmt.Fprintln(os.Stderr, "Error: Must specify -data or -hex for send mode")
		os.Exit(1)
	}

	if verbose {
		fmt.Printf("Transmitting %d bytes\n", len(data))
		fmt.Printf("Data (hex): %s\n", hex.EncodeToString(data))
	}

	if err := radio.Transmit(data); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Transmit failed: %v\n", err)
		os.Exit(1)
	}

	// Wait for the TxDone event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-radio.Events():
			if verbose {
				fmt.Printf("  event: %s\n", ev)
			}
			if ev.Kind == sx1262.EventTxDone {
				fmt.Println("Transmission complete")
				return
			}
		case <-deadline:
			fmt.Fprintln(os.Stderr, "Error: No TxDone within 10s")
			os.Exit(1)
		}
	}
}

func runRecvMode(radio *sx1262.Radio, timeout time.Duration, count int, verbose, rawOutput bool) {
	// Set up signal handler for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	window := sx1262.RxTimeoutContinuous
	if timeout > 0 {
		window = sx1262.RxTimeout(timeout)
	}
	if err := radio.StartReceive(window); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enter RX mode: %v\n", err)
		os.Exit(1)
	}

	if !rawOutput {
		fmt.Println("Listening for packets (Ctrl+C to stop)...")
		fmt.Println()
	}

	packetsReceived := 0
	startTime := time.Now()

	for {
		select {
		case <-sigChan:
			if !rawOutput {
				fmt.Printf("\n\nReceived %d packets in %v\n",
					packetsReceived, time.Since(startTime).Round(time.Second))
			}
			radio.Abort()
			return

		case ev := <-radio.Events():
			if verbose {
				fmt.Printf("  [event] %s (state %s)\n", ev, radio.State())
			}
			if radio.State() == sx1262.StateFault {
				fmt.Fprintf(os.Stderr, "Error: Radio fault: %v\n", radio.FaultReason())
				os.Exit(1)
			}

		case pkt := <-radio.Rx():
			packetsReceived++
			if rawOutput {
				fmt.Println(hex.EncodeToString(pkt.Payload))
			} else {
				fmt.Printf("[%s] Packet #%d (%d bytes):\n",
					time.Now().Format("15:04:05.000"), packetsReceived, pkt.Length)
				fmt.Printf("  RSSI: %d dBm, SNR: %d dB\n", pkt.RssiDBm, pkt.SnrDB)
				fmt.Printf("  Hex: %s\n", hex.EncodeToString(pkt.Payload))
				fmt.Printf("  ASCII: %s\n", makePrintable(pkt.Payload))
				fmt.Println()
			}

			if count > 0 && packetsReceived >= count {
				if !rawOutput {
					fmt.Printf("Received requested %d packets\n", count)
				}
				radio.Abort()
				return
			}

			// The radio parks in standby after each packet; listen again.
			if err := radio.StartReceive(window); err != nil {
				fmt.Fprintf(os.Stderr, "Error: Failed to re-enter RX mode: %v\n", err)
				os.Exit(1)
			}
		}
	}
}

// makePrintable converts bytes to a printable string, replacing non-printable characters
func makePrintable(data []byte) string {
	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b < 127 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
