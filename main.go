// main is the entry point for the raking CLI.
package main

import (
	"github.com/surveykit/raking/cmd"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/internal/iocache"
)

func main() {
	cmd.SetCacheManager(iocache.Manager)

	err := cmd.Execute()
	if stopErr := cmd.StopProfiling(); stopErr != nil {
		contract.LogWarn("Failed to stop profiling", stopErr)
	}
	iocache.CloseStores()
	if err != nil {
		contract.LogFatal("Command failed", err)
	}
}
