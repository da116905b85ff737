package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/assertion"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/discovery"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/driver"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/engine"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/environment"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/events"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/log"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/registry"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/repository"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/telemetry"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

var version = "dev"

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "chaos-coordinator",
		Short: "Chaos scenario orchestrator for the trading ecosystem",
	}
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run <scenario.yaml>",
			Short: "Execute a chaos scenario and wait for the verdict",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runScenario(args[0])
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		},
	)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScenario(path string) error {
	var details types.CoordinatorDetails
	environment.GetENV(&details)

	ctx := context.Background()
	if details.OTLPEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(ctx, details.OTLPEndpoint)
		if err != nil {
			log.Warnf("Unable to initialise tracing, continuing without, err: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	resolveEndpoints(ctx, &details)

	var repo repository.Repository = repository.Noop{}
	if details.PostgresURL != "" {
		pg, err := repository.NewPostgres(details.PostgresURL)
		if err != nil {
			log.Warnf("Unable to open the execution repository, records stay in memory, err: %v", err)
		} else {
			defer pg.Close()
			repo = pg
		}
	}

	var recorder *events.Recorder
	if details.RedisURL != "" {
		rec, err := events.NewRecorder(details.RedisURL)
		if err != nil {
			log.Warnf("Unable to connect the event recorder, err: %v", err)
		} else {
			defer rec.Close()
			recorder = rec
		}
	}

	drivers := driver.NewRegistry()
	for service, endpoint := range details.Services {
		d, err := driver.NewHTTPDriver(service, endpoint.BaseURL, details.ServiceTimeout(service))
		if err != nil {
			return err
		}
		drivers.Register(service, d)
	}

	eng := engine.New(details, drivers, assertion.NewRegistry(details), repo, recorder)
	reg := registry.New(eng, details)

	sc, err := scenario.LoadFile(path)
	if err != nil {
		return err
	}
	executionID, err := reg.Submit(sc)
	if err != nil {
		return err
	}
	finished, err := reg.Finished(executionID)
	if err != nil {
		return err
	}

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-finished:
	case <-interrupted:
		log.Warn("[Registry]: Interrupt received, stopping the execution")
		if err := reg.Stop(executionID); err != nil {
			log.Errorf("Unable to stop execution %v, err: %v", executionID, err)
		}
		select {
		case <-finished:
		case <-time.After(2 * details.CancellationGrace):
			log.Error("Execution did not finalize within the shutdown grace")
		}
	}

	snapshot, err := reg.Status(executionID)
	if err != nil {
		return err
	}
	rendered, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(rendered))

	if snapshot.Status != types.StatusCompleted {
		return fmt.Errorf("execution %s finished with status %s: %s", executionID, snapshot.Status, snapshot.TerminationReason)
	}
	return nil
}

// resolveEndpoints overlays discovery results onto the statically configured
// service URLs; discovery misses fall back to configuration
func resolveEndpoints(ctx context.Context, details *types.CoordinatorDetails) {
	if details.RedisURL == "" {
		return
	}
	disc, err := discovery.New(details.RedisURL)
	if err != nil {
		log.Warnf("Unable to reach service discovery, using configured endpoints, err: %v", err)
		return
	}
	defer disc.Close()

	for _, service := range environment.KnownServices {
		info, err := disc.Get(ctx, service)
		if err != nil || info == nil {
			continue
		}
		endpoint := details.Services[service]
		endpoint.BaseURL = info.BaseURL()
		details.Services[service] = endpoint
	}
}
