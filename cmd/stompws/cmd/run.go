package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tsarna/stompws/pkg/stomp/client"
	"github.com/tsarna/stompws/pkg/stomp/config"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/schedule"
	"github.com/tsarna/stompws/pkg/stomp/stream"
	"github.com/tsarna/stompws/pkg/stomp/transform"
	"go.uber.org/zap"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <config-files-or-directories...>",
	Short: "Run every endpoint of a configuration",
	Long: `Connect to every endpoint defined in the configuration, subscribe to its
subscribe blocks and print their messages, and perform its send blocks.
Sends with a schedule run on that schedule; sends without one are sent
each time a session is established.

Examples:
  stompws run broker.hcl
  stompws run ./configs/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runRaw     bool
	runMetrics connectionFlags
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runRaw, "raw", false, "print bodies only")
	runCmd.Flags().DurationVar(&runMetrics.metricsInterval, "metrics-interval", 0, "log metrics at this interval, 0 to disable")
	runCmd.Flags().BoolVar(&runMetrics.otel, "otel", false, "report metrics and traces to the global OpenTelemetry providers")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Loading configuration", zap.Strings("config-paths", args))

	cfg, diags := config.NewConfig().
		WithLogger(logger).
		WithSources(stringSliceToAnySlice(args)...).
		Build()
	if diags.HasErrors() {
		logger.Error("Failed to build config", zap.Any("diags", diags))
		return diags
	}

	endpoints := cfg.EndpointList()
	if len(endpoints) == 0 {
		return fmt.Errorf("no endpoint is defined")
	}

	p := newPrinter(cmd.OutOrStdout(), runRaw, 0, logger)
	async := stream.NewAsyncObserver[delivery](p.deliver, 1000).Start()
	defer closeQueue(async, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stops []func() error
	stopAll := func() error {
		for i := len(stops) - 1; i >= 0; i-- {
			if err := stops[i](); err != nil {
				logger.Warn("Error during shutdown", zap.Error(err))
			}
		}
		return nil
	}

	for _, ep := range endpoints {
		stop, err := startEndpoint(ctx, logger, ep, p, async)
		if err != nil {
			stopAll()
			return fmt.Errorf("endpoint %s: %w", ep.Name, err)
		}
		stops = append(stops, stop)
	}

	return waitForShutdown(ctx, logger, nil, nil, stopAll)
}

// startEndpoint starts the service of ep with its subscriptions and sends,
// and returns a function that stops them.
func startEndpoint(ctx context.Context, logger *zap.Logger, ep *config.Endpoint, p *printer, async *stream.AsyncObserver[delivery]) (func() error, error) {
	logger = logger.With(zap.String("endpoint", ep.Name))

	pipelines := make([][]transform.MessageTransformFunc, len(ep.Subscriptions))
	for i, sub := range ep.Subscriptions {
		transforms, err := sub.Transforms(logger)
		if err != nil {
			return nil, fmt.Errorf("subscription %s: %w", sub.Destination, err)
		}
		pipelines[i] = transforms
	}

	svc, stopMetrics, err := runMetrics.buildService(logger, ep)
	if err != nil {
		return nil, err
	}

	scheduler, err := schedule.NewScheduler().
		WithSender(svc.Client()).
		WithLogger(logger).
		Build()
	if err != nil {
		stopMetrics()
		return nil, err
	}

	var onConnect []*config.Send
	for _, send := range ep.Sends {
		if send.Schedule == "" {
			onConnect = append(onConnect, send)
			continue
		}
		if _, err := scheduler.Add(send.Job()); err != nil {
			stopMetrics()
			return nil, err
		}
	}

	runs := make(map[string]int64)
	connSub := svc.ConnectedClient().Subscribe(func(c *client.Client) {
		for i, sub := range ep.Subscriptions {
			s, err := c.Subscribe(ctx, sub.Destination, sub.Header)
			if err != nil {
				logger.Error("Failed to subscribe", zap.String("destination", sub.Destination), zap.Error(err))
				continue
			}
			var acker Acker
			if mode, _ := sub.Header.Get(frame.HdrAck); mode != "" && mode != "auto" {
				acker = c
			}
			transforms := pipelines[i]
			s.Messages().Subscribe(func(m frame.Message) {
				d := delivery{msg: m, transforms: transforms, acker: acker}
				if err := async.Next(d); err != nil {
					p.reject(d, err)
				}
			})
		}

		for _, send := range onConnect {
			runs[send.Name]++
			sendOnce(ctx, logger, c, send, runs[send.Name])
		}
	})

	if err := svc.Start(ctx); err != nil {
		connSub.Unsubscribe()
		stopMetrics()
		return nil, err
	}
	scheduler.Start()

	return func() error {
		<-scheduler.Stop().Done()
		connSub.Unsubscribe()
		err := svc.Stop(context.Background())
		stopMetrics()
		return err
	}, nil
}

func sendOnce(ctx context.Context, logger *zap.Logger, c *client.Client, send *config.Send, n int64) {
	body, err := send.Body(ctx, n)
	if err != nil {
		logger.Error("Error producing body", zap.String("send", send.Name), zap.Error(err))
		return
	}
	if err := c.Send(ctx, send.Destination, body, send.Header); err != nil {
		logger.Error("Error sending message", zap.String("send", send.Name), zap.Error(err))
	}
}

