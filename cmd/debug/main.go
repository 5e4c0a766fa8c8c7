package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/tado-setpoint-exporter/db"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/model"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, zone string
	var limit int
	flag.StringVar(&dbPath, "db", "data/exporter.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: latest, history")
	flag.StringVar(&zone, "zone", "", "Zone name for the history command")
	flag.IntVar(&limit, "limit", 20, "Number of history rows to show")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of exporter-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/exporter.db')")
		fmt.Println("  -cmd string\tCommand to run: latest, history")
		fmt.Println("  -zone string\tZone name for the history command")
		fmt.Println("  -limit int\tNumber of history rows to show (default 20)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "latest":
		err = db.PrintLatestCLI(dbPath, os.Stdout)
	case "history":
		if zone == "" {
			fmt.Println("Error: zone is required")
			os.Exit(1)
		}
		err = db.PrintHistoryCLI(dbPath, model.Normalize(zone), limit, os.Stdout)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
}
