// Command jobqueue is the dispatcher CLI: a bounded or continuous run of
// the claim/execute loop, optionally alongside the admin and webhook HTTP
// surface in the same process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/vendorqueue/internal/app"
	"github.com/yungbote/vendorqueue/internal/dispatcher"
	"github.com/yungbote/vendorqueue/internal/pkg/env"
)

func envTrue(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func main() {
	limit := flag.Int("limit", 0, "stop after this many jobs processed (bounded mode only)")
	jobType := flag.String("type", "", "restrict this run to a single job type")
	continuous := flag.Bool("continuous", false, "run forever with idle backoff instead of exiting when the queue drains")
	noContinuous := flag.Bool("no-continuous", false, "explicitly force bounded mode, overriding RUN_CONTINUOUS")
	timeout := flag.Duration("timeout", 0, "overall deadline for this run; 0 means no deadline beyond the process's own")
	flag.Parse()

	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(3)
	}
	defer a.Close()
	a.Start()

	runServer := envTrue("RUN_SERVER", false)
	if runServer {
		go func() {
			port := env.GetEnv("PORT", "8080", a.Log)
			a.Log.Info("admin/webhook server listening", "port", port)
			if err := a.Run(":" + port); err != nil {
				a.Log.Warn("server failed", "error", err)
			}
		}()
	}

	mode := dispatcher.ModeBounded
	if (*continuous || envTrue("RUN_CONTINUOUS", false)) && !*noContinuous {
		mode = dispatcher.ModeContinuous
	}

	opts := dispatcher.RunOptions{
		Mode:         mode,
		Limit:        *limit,
		ExplicitType: *jobType,
		Timeout:      *timeout,
	}

	summary, runErr := a.Dispatcher.RunWithSignals(context.Background(), opts)
	if runErr != nil {
		a.Log.Error("dispatcher run failed", "error", runErr)
	}
	a.Log.Info("dispatcher run finished", "processed", summary.Processed, "completed", summary.Completed, "retried", summary.Retried, "dead_lettered", summary.DeadLettered)

	code := dispatcher.ExitCode(summary, runErr)
	if runServer && runErr == nil {
		// A server-mode process stays alive for the HTTP surface even after
		// a bounded dispatcher run finishes; a continuous run only returns
		// here on shutdown signal, at which point exiting is correct either way.
		if mode == dispatcher.ModeBounded {
			select {}
		}
	}
	os.Exit(code)
}
