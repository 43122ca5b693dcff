package main

import (
	"fmt"
	"os"

	"github.com/tradewatch/cryptobot/internal/app"
)

func main() {
	a, err := app.Init("maintenance")
	if err != nil {
		fmt.Fprintf(os.Stderr, "maintenance: %v\n", err)
		os.Exit(1)
	}
	a.AddRunner(a.MaintenanceRunner())
	if err := a.Run(); err != nil {
		os.Exit(1)
	}
}
