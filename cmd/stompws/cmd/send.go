package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/schedule"
	"go.uber.org/zap"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [url] <destination> <body>",
	Short: "Send a message to a destination",
	Long: `Send a message to a destination and disconnect.

Without --config the first argument is the endpoint URL. With --config the
endpoint comes from the configuration.

With --schedule the message is sent repeatedly on a cron schedule until
interrupted. Schedules take standard cron expressions with an optional
seconds field, or descriptors such as "@every 5s" and "@hourly".

Examples:
  stompws send ws://localhost:15674/ws /queue/work "hello"
  stompws send ws://localhost:15674/ws /topic/events '{"kind":"ping"}' --content-type application/json
  stompws send ws://localhost:15674/ws /topic/ticks tick --schedule "@every 5s"
  stompws send --config broker.hcl /queue/work "hello" --receipt`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSend,
}

var (
	sendConn        connectionFlags
	sendSchedule    string
	sendTimezone    string
	sendReceipt     bool
	sendContentType string
	sendHeaders     []string
	sendTimeout     time.Duration
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendConn.register(sendCmd)
	sendCmd.Flags().StringVar(&sendSchedule, "schedule", "", "send repeatedly on this cron schedule")
	sendCmd.Flags().StringVar(&sendTimezone, "timezone", "Local", "timezone for --schedule")
	sendCmd.Flags().BoolVar(&sendReceipt, "receipt", false, "request a receipt and wait for it")
	sendCmd.Flags().StringVar(&sendContentType, "content-type", "", "content-type header of the message")
	sendCmd.Flags().StringArrayVar(&sendHeaders, "send-header", nil, "extra SEND header as key=value (repeatable)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "time allowed to connect and send")
}

func runSend(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := sendConn.loadConfig(logger)
	if err != nil {
		return err
	}

	var url string
	if cfg == nil {
		if len(args) != 3 {
			return fmt.Errorf("a URL, a destination and a body are required")
		}
		url, args = args[0], args[1:]
	} else if len(args) != 2 {
		return fmt.Errorf("a destination and a body are required")
	}
	destination, body := args[0], args[1]

	ep, err := sendConn.resolve(cmd, cfg, url)
	if err != nil {
		return err
	}

	header := parseKeyValues(sendHeaders)
	if sendContentType != "" {
		header.Set(frame.HdrContentType, sendContentType)
	}

	svc, stopMetrics, err := sendConn.buildService(logger, ep)
	if err != nil {
		return err
	}
	defer stopMetrics()

	c := svc.Client()

	connectCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if _, err := c.ConnectAndWait(connectCtx, ep.Configuration.Connect); err != nil {
		return err
	}
	defer func() {
		if err := c.Disconnect(context.Background(), nil, nil); err != nil {
			logger.Warn("Error during client disconnect", zap.Error(err))
		}
	}()

	logger.Info("Connected", zap.String("url", c.URL()))

	if sendSchedule != "" {
		scheduler, err := schedule.NewScheduler().
			WithSender(c).
			WithLogger(logger).
			WithTimezone(sendTimezone).
			Build()
		if err != nil {
			return err
		}

		if _, err := scheduler.Add(schedule.Job{
			Name:        "cli",
			Schedule:    sendSchedule,
			Destination: destination,
			Header:      header,
			Body:        schedule.StaticBody(body),
		}); err != nil {
			return err
		}

		lost := make(chan struct{}, 1)
		errSub := c.Errors().Subscribe(func(frame.ErrorFrame) {
			select {
			case lost <- struct{}{}:
			default:
			}
		})
		defer errSub.Unsubscribe()

		scheduler.Start()
		return waitForShutdown(context.Background(), logger, nil, lost, func() error {
			<-scheduler.Stop().Done()
			return nil
		})
	}

	if sendReceipt {
		header.Set(frame.HdrReceipt, "send-receipt")
	}

	if err := c.Send(connectCtx, destination, body, header); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if sendReceipt {
		if _, err := c.WaitReceipt(connectCtx, "send-receipt"); err != nil {
			return fmt.Errorf("no receipt for message: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "receipt received")
	}

	logger.Info("Message sent", zap.String("destination", destination))
	return nil
}
