package main

import (
	"github.com/Paintersrp/beatguard/internal/cli"
	"github.com/Paintersrp/beatguard/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
