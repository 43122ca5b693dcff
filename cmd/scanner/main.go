package main

import (
	"fmt"
	"os"

	"github.com/tradewatch/cryptobot/internal/app"
)

func main() {
	a, err := app.Init("scanner")
	if err != nil {
		fmt.Fprintf(os.Stderr, "scanner: %v\n", err)
		os.Exit(1)
	}
	a.AddRunner(a.ScannerRunner())
	if err := a.Run(); err != nil {
		os.Exit(1)
	}
}
