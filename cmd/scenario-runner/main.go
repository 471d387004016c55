// Package main runs the scripted scenario suite against an in-process engine
// and exits non-zero when any check fails.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fracreserve/banksim/internal/platform/logger"
	"github.com/fracreserve/banksim/internal/scenario"
)

func main() {
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for the randomized mirror sweep")
	asJSON := flag.Bool("json", false, "print results as JSON")
	verbose := flag.Bool("v", false, "log every check")
	flag.Parse()

	log := logger.NewNop()
	if *verbose {
		log = logger.NewLogger()
	}
	defer log.Sync()

	results := scenario.NewSuite(log, *seed).Run(context.Background())
	passed, failed := scenario.Summary(results)

	if *asJSON {
		out, _ := json.MarshalIndent(map[string]interface{}{
			"seed":    *seed,
			"passed":  passed,
			"failed":  failed,
			"results": results,
		}, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Println("BANKING SIMULATION SCENARIO SUITE")
		fmt.Println(strings.Repeat("=", 60))
		for _, r := range results {
			mark := "PASS"
			if !r.Passed {
				mark = "FAIL"
			}
			fmt.Printf("[%s] %-7s %-32s", mark, r.Scenario, r.Check)
			if !r.Passed {
				fmt.Printf(" expected %s, got %s", r.Expected, r.Actual)
			}
			fmt.Println()
		}
		fmt.Println(strings.Repeat("=", 60))
		fmt.Printf("seed %d: %d passed, %d failed\n", *seed, passed, failed)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
