// Package schedule sends STOMP frames on cron schedules.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"go.uber.org/zap"
)

// Sender is the part of the STOMP client a Scheduler needs.
type Sender interface {
	Send(ctx context.Context, destination, body string, header *frame.Header) error
}

// BodyFunc produces the body of the n-th send of a job, counting from 1.
type BodyFunc func(ctx context.Context, n int64) (string, error)

// StaticBody returns a BodyFunc that always produces body.
func StaticBody(body string) BodyFunc {
	return func(context.Context, int64) (string, error) {
		return body, nil
	}
}

// Job describes one scheduled send.
type Job struct {
	Name        string
	Schedule    string
	Destination string
	Header      *frame.Header
	Body        BodyFunc
}

// Scheduler runs Jobs against a Sender.
type Scheduler struct {
	cron   *cron.Cron
	sender Sender
	logger *zap.Logger
}

// Add schedules job. The schedule accepts standard cron expressions with an
// optional seconds field as well as descriptors like "@every 5s".
func (s *Scheduler) Add(job Job) (cron.EntryID, error) {
	if job.Destination == "" {
		return 0, fmt.Errorf("job %q: destination is required", job.Name)
	}
	if job.Body == nil {
		job.Body = StaticBody("")
	}

	id, err := s.cron.AddJob(job.Schedule, s.newSendJob(job))
	if err != nil {
		return 0, fmt.Errorf("job %q: invalid schedule %q: %w", job.Name, job.Schedule, err)
	}
	return id, nil
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler. The returned context is done once running jobs
// have completed.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) newSendJob(job Job) *sendJob {
	return &sendJob{job: job, sender: s.sender, logger: s.logger}
}

type sendJob struct {
	job    Job
	sender Sender
	logger *zap.Logger
	count  atomic.Int64
}

func (j *sendJob) Run() {
	n := j.count.Add(1)
	ctx := context.Background()

	j.logger.Debug("Executing scheduled send", zap.String("job", j.job.Name), zap.Int64("run", n))

	body, err := j.job.Body(ctx, n)
	if err != nil {
		j.logger.Error("Error producing body", zap.String("job", j.job.Name), zap.Error(err))
		return
	}

	if err := j.sender.Send(ctx, j.job.Destination, body, j.job.Header); err != nil {
		j.logger.Error("Error sending scheduled message",
			zap.String("job", j.job.Name),
			zap.String("destination", j.job.Destination),
			zap.Error(err))
		return
	}

	j.logger.Debug("Scheduled send complete", zap.String("job", j.job.Name), zap.Int64("run", n))
}

// SchedulerBuilder provides a fluent interface for building schedulers.
type SchedulerBuilder struct {
	sender   Sender
	logger   *zap.Logger
	timezone string
}

// NewScheduler creates a new scheduler builder.
func NewScheduler() *SchedulerBuilder {
	return &SchedulerBuilder{
		logger:   zap.NewNop(),
		timezone: "Local",
	}
}

// WithSender sets where scheduled frames are sent.
func (b *SchedulerBuilder) WithSender(sender Sender) *SchedulerBuilder {
	b.sender = sender
	return b
}

// WithLogger sets the logger for the scheduler.
func (b *SchedulerBuilder) WithLogger(logger *zap.Logger) *SchedulerBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithTimezone sets the IANA timezone schedules are evaluated in.
func (b *SchedulerBuilder) WithTimezone(timezone string) *SchedulerBuilder {
	if timezone != "" {
		b.timezone = timezone
	}
	return b
}

// Build creates the scheduler.
func (b *SchedulerBuilder) Build() (*Scheduler, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	location, err := time.LoadLocation(b.timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %s", b.timezone)
	}

	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(NewZapCronLogger(b.logger)),
			cron.WithParser(parser),
			cron.WithLocation(location),
		),
		sender: b.sender,
		logger: b.logger,
	}, nil
}

// IsValid checks that all required configuration is present.
func (b *SchedulerBuilder) IsValid() error {
	if b.sender == nil {
		return fmt.Errorf("sender is required")
	}
	return nil
}
