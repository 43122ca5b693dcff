package main

import (
	"fmt"
	"os"

	"github.com/tradewatch/cryptobot/internal/app"
)

func main() {
	a, err := app.Init("executor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "executor: %v\n", err)
		os.Exit(1)
	}
	for _, r := range a.ExecutorRunners() {
		a.AddRunner(r)
	}
	if err := a.Run(); err != nil {
		os.Exit(1)
	}
}
