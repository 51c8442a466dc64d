package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tsarna/stompws/pkg/stomp/client"
	"github.com/tsarna/stompws/pkg/stomp/config"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/stream"
	"github.com/tsarna/stompws/pkg/stomp/transform"
	"go.uber.org/zap"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe [url] <destination...>",
	Short: "Subscribe to destinations and print messages",
	Long: `Subscribe to one or more destinations and print each message to stdout
as "<destination><TAB><body>".

Without --config the first argument is the endpoint URL. With --config the
endpoint comes from the configuration and every argument is a destination;
when none are given, the subscriptions declared in the configuration are used.

Examples:
  stompws subscribe ws://localhost:15674/ws /topic/greetings
  stompws subscribe --sockjs http://localhost:8080/stomp /topic/a /topic/b
  stompws subscribe ws://localhost:15674/ws /topic/sensors --jq '.temp' --match '/topic/+'
  stompws subscribe --config broker.hcl`,
	Args: cobra.MinimumNArgs(0),
	RunE: runSubscribe,
}

var (
	subscribeConn  connectionFlags
	subscribeJq    string
	subscribeMatch []string
	subscribeAck   string
	subscribeRaw   bool
	subscribeCount int
)

func init() {
	rootCmd.AddCommand(subscribeCmd)

	subscribeConn.register(subscribeCmd)
	subscribeCmd.Flags().StringVar(&subscribeJq, "jq", "", "jq query applied to each message body")
	subscribeCmd.Flags().StringSliceVar(&subscribeMatch, "match", nil, "only print messages whose destination matches an MQTT-style pattern")
	subscribeCmd.Flags().StringVar(&subscribeAck, "ack", "auto", "ack mode (auto, client, client-individual)")
	subscribeCmd.Flags().BoolVar(&subscribeRaw, "raw", false, "print bodies only")
	subscribeCmd.Flags().IntVarP(&subscribeCount, "count", "n", 0, "exit after printing this many messages")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	switch subscribeAck {
	case "auto", "client", "client-individual":
	default:
		return fmt.Errorf("invalid ack mode %q", subscribeAck)
	}

	cfg, err := subscribeConn.loadConfig(logger)
	if err != nil {
		return err
	}

	var url string
	destinations := args
	if cfg == nil {
		if len(args) < 2 {
			return fmt.Errorf("a URL and at least one destination are required")
		}
		url, destinations = args[0], args[1:]
	}

	ep, err := subscribeConn.resolve(cmd, cfg, url)
	if err != nil {
		return err
	}

	subs := ep.Subscriptions
	if len(destinations) > 0 {
		subs = nil
		for _, dest := range destinations {
			subs = append(subs, &config.Subscription{Destination: dest, Header: frame.NewHeader()})
		}
	}
	if len(subs) == 0 {
		return fmt.Errorf("no destinations to subscribe to")
	}

	common, err := subscribeTransforms(logger)
	if err != nil {
		return err
	}

	svc, stopMetrics, err := subscribeConn.buildService(logger, ep)
	if err != nil {
		return err
	}
	defer stopMetrics()

	p := newPrinter(cmd.OutOrStdout(), subscribeRaw, subscribeCount, logger)
	if subscribeAck != "auto" {
		p.acker = svc.Client()
	}

	// Printing happens off the transport's read loop
	async := stream.NewAsyncObserver[delivery](p.deliver, 1000).Start()
	defer closeQueue(async, logger)

	pipelines := make(map[string][]transform.MessageTransformFunc)
	for _, sub := range subs {
		transforms, err := sub.Transforms(logger)
		if err != nil {
			return fmt.Errorf("subscription %s: %w", sub.Destination, err)
		}
		pipelines[sub.Destination] = append(transforms, common...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connSub := svc.ConnectedClient().Subscribe(func(c *client.Client) {
		for _, sub := range subs {
			header := sub.Header.Clone()
			if !header.Contains(frame.HdrAck) {
				header.Set(frame.HdrAck, subscribeAck)
			}

			s, err := c.Subscribe(ctx, sub.Destination, header)
			if err != nil {
				logger.Error("Failed to subscribe", zap.String("destination", sub.Destination), zap.Error(err))
				continue
			}

			transforms := pipelines[sub.Destination]
			s.Messages().Subscribe(stream.NewLoggingObserver[frame.Message](func(m frame.Message) {
				d := delivery{msg: m, transforms: transforms}
				if err := async.Next(d); err != nil {
					p.reject(d, err)
				}
			}, logger, zap.DebugLevel, s.ID()))
			logger.Info("Subscribed", zap.String("destination", sub.Destination), zap.String("id", s.ID()))
		}
	})
	defer connSub.Unsubscribe()

	lost := make(chan struct{}, 1)
	errSub := svc.Client().Errors().Subscribe(func(ef frame.ErrorFrame) {
		select {
		case lost <- struct{}{}:
		default:
		}
	})
	defer errSub.Unsubscribe()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	return waitForShutdown(ctx, logger, p.Done(), lost, func() error { return svc.Stop(context.Background()) })
}

func subscribeTransforms(logger *zap.Logger) ([]transform.MessageTransformFunc, error) {
	var transforms []transform.MessageTransformFunc

	for _, pattern := range subscribeMatch {
		transforms = append(transforms, transform.KeepDestinationPattern(pattern))
	}

	if subscribeJq != "" {
		jq, err := transform.JqTransform(subscribeJq, logger)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, jq)
	}

	return transforms, nil
}

// waitForShutdown blocks until a signal arrives, done is closed or the
// session fails, then calls stop.
func waitForShutdown(ctx context.Context, logger *zap.Logger, done <-chan struct{}, failed <-chan struct{}, stop func() error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Listening for messages... (Press Ctrl+C to exit)")

	var result error
	select {
	case sig := <-sigChan:
		logger.Debug("Signal received, exiting", zap.String("signal", sig.String()))
	case <-done:
		logger.Debug("Message limit reached, exiting")
	case <-failed:
		result = fmt.Errorf("STOMP session failed")
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down...")
	}

	if err := stop(); err != nil {
		logger.Warn("Error during client disconnect", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return result
}
