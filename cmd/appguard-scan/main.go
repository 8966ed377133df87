// appguard-scan is a diagnostic tool: it scans for BLE advertisements,
// prints RSSI readings, and decodes the proprietary nearby-info payload so
// a companion's on-body state can be verified before pairing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"appguard/internal/proximity"
)

func main() {
	nameFilter := flag.String("name", "", "Only print devices whose name contains this substring")
	duration := flag.Duration("duration", 30*time.Second, "How long to scan")
	decodeOnly := flag.Bool("decode-only", false, "Only print advertisements carrying a decodable nearby-info payload")
	flag.Parse()

	central := proximity.NewBLECentral()
	state, err := central.Enable()
	if err != nil {
		log.Fatalf("❌ Failed to enable Bluetooth radio: %v (state: %s)", err, state)
	}
	fmt.Printf("Radio state: %s\n", state)
	fmt.Printf("Scanning for %s...\n\n", *duration)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		cancel()
	}()

	seen := make(map[string]int)
	err = central.Scan(ctx, func(adv proximity.Advertisement) {
		if *nameFilter != "" && !strings.Contains(strings.ToLower(adv.Name), strings.ToLower(*nameFilter)) {
			return
		}

		unlocked, decoded := false, false
		for _, field := range adv.ManufacturerData {
			if field.CompanyID != proximity.CompanyID {
				continue
			}
			if u, ok := proximity.ParseNearbyInfo(field.Data); ok {
				unlocked, decoded = u, true
			}
		}
		if *decodeOnly && !decoded {
			return
		}

		seen[adv.Address]++
		line := fmt.Sprintf("%-20s rssi=%-5d name=%q", adv.Address, adv.RSSI, adv.Name)
		if decoded {
			state := "locked"
			if unlocked {
				state = "unlocked"
			}
			line += " on-body=" + state
		}
		fmt.Println(line)
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("❌ Scan failed: %v", err)
	}

	fmt.Printf("\nScan complete: %d device(s) seen\n", len(seen))
}
