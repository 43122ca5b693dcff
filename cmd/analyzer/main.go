package main

import (
	"fmt"
	"os"

	"github.com/tradewatch/cryptobot/internal/app"
)

func main() {
	a, err := app.Init("analyzer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyzer: %v\n", err)
		os.Exit(1)
	}
	a.AddRunner(a.AnalyzerRunner())
	if err := a.Run(); err != nil {
		os.Exit(1)
	}
}
