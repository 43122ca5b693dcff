package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tradewatch/cryptobot/internal/app"
)

// Single-process mode: every worker loop in one process against the
// same stores. Leases are uncontended but the coordination path is the
// same one the multi-process deployment exercises.
func main() {
	paper := flag.Bool("paper", false, "force paper trading regardless of environment")
	flag.Parse()
	if *paper {
		os.Setenv("PAPER_TRADING", "true")
	}

	a, err := app.Init("bot")
	if err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
	a.AddRunner(a.ScannerRunner())
	a.AddRunner(a.AnalyzerRunner())
	for _, r := range a.ExecutorRunners() {
		a.AddRunner(r)
	}
	a.AddRunner(a.MaintenanceRunner())
	if err := a.Run(); err != nil {
		os.Exit(1)
	}
}
