// lora-status: Dump chip status and latched device errors.
//
// Resets the chip, applies the baseline configuration from a profile, then
// prints the status byte, the latched error flags and the IRQ register.
// Useful for checking the wiring of a freshly attached module.
//
//	./lora-status -c us915
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/herlein/golora/pkg/config"
	"github.com/herlein/golora/pkg/sx1262"
	"github.com/herlein/golora/pkg/transport"
)

func main() {
	profileRef := flag.String("c", "us915", "Profile name or JSON file path")
	clear := flag.Bool("clear", false, "Clear latched device errors after reading")

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

	radio, err := sx1262.New(bus, cfg, sx1262.ModeReceiveOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := radio.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize radio: %v\n", err)
		os.Exit(1)
	}

	dev := radio.Device()

	fmt.Printf("Profile:  %s\n", profile)

	status, err := dev.GetStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Status:   %s\n", status)

	chipErr, err := dev.GetDeviceErrors()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read device errors: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Errors:   %s\n", chipErr)

	irq, err := dev.GetIrqStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read IRQ status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("IRQ:      0x%04X\n", irq)

	sync, err := dev.ReadRegister(sx1262.RegLoRaSyncWordMSB, 2)
	if err == nil {
		fmt.Printf("SyncWord: 0x%02X%02X\n", sync[0], sync[1])
	}

	if *clear && chipErr != 0 {
		if err := dev.ClearDeviceErrors(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to clear device errors: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Device errors cleared")
	}
}
