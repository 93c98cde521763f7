// Package driver runs each test of a suite in its own child process and collects the outcomes
// through result channels.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/toejough/forktest/internal/channel"
	"github.com/toejough/forktest/internal/core"
	"github.com/toejough/forktest/internal/history"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CommandFunc builds the command that runs one test in a child process.
// The driver adds the child protocol variables to the command's environment.
type CommandFunc func(test string) (*exec.Cmd, error)

// Driver runs suites.
type Driver struct {
	config   Config
	log      *zap.Logger
	reporter core.Reporter
	command  CommandFunc
	history  *history.Store
	newRunID func() string
}

// Option configures a Driver.
type Option func(*Driver)

// New creates a driver with the default configuration, no reporter, and children
// spawned by re-executing the current binary.
func New(opts ...Option) *Driver {
	driver := &Driver{
		config:   DefaultConfig(),
		log:      zap.NewNop(),
		command:  SelfCommand,
		newRunID: uuid.NewString,
	}

	for _, opt := range opts {
		opt(driver)
	}

	return driver
}

// WithCommand sets how child processes are built.
func WithCommand(command CommandFunc) Option {
	return func(d *Driver) {
		d.command = command
	}
}

// WithConfig replaces the driver's configuration.
func WithConfig(config Config) Option {
	return func(d *Driver) {
		d.config = config
	}
}

// WithHistory makes the driver use store for run history instead of opening one from its config.
func WithHistory(store *history.Store) Option {
	return func(d *Driver) {
		d.history = store
	}
}

// WithLogger sets the driver's logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Driver) {
		if log != nil {
			d.log = log
		}
	}
}

// WithReporter sets where results are sent.
func WithReporter(reporter core.Reporter) Option {
	return func(d *Driver) {
		d.reporter = reporter
	}
}

// SelfCommand re-executes the running binary. The child is expected to recognise the protocol
// variables before doing anything else; the -test.run flag keeps a test binary that does not
// from running any tests.
func SelfCommand(string) (*exec.Cmd, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("finding test executable: %w", err)
	}

	return exec.Command(executable, "-test.run=^$"), nil //nolint:gosec // runs ourselves
}

// Run runs every test of suite, each in its own child process, at most Config.Parallel at a time.
// Results go to the reporter as they complete. The returned error is for problems with the run
// itself; test failures are only reported.
func (d *Driver) Run(ctx context.Context, suite core.Suite) (core.Summary, error) {
	err := d.config.Validate()
	if err != nil {
		return core.Summary{}, err
	}

	err = suite.Validate()
	if err != nil {
		return core.Summary{}, fmt.Errorf("running suite %q: %w", suite.Name, err)
	}

	runID := d.newRunID()
	log := d.log.With(zap.String("suite", suite.Name), zap.String("run", runID))
	start := time.Now()

	swept, err := channel.Sweep(d.config.MailboxDir, log)
	if err != nil {
		log.Warn("failed to sweep orphaned result channels", zap.Error(err))
	} else if swept > 0 {
		log.Info("swept orphaned result channels", zap.Int("count", swept))
	}

	set := channel.NewSet(filepath.Join(d.config.MailboxDir, runID), channel.WithLogger(log))
	defer func() {
		closeErr := set.Close()
		if closeErr != nil {
			log.Warn("failed to clean up result channels", zap.Error(closeErr))
		}
	}()

	store := d.history
	if store == nil {
		store, err = history.Open(d.config.HistoryDir, history.WithLogger(log))
		if err != nil {
			return core.Summary{}, err
		}

		defer store.Close()
	}

	order, err := d.order(store, suite)
	if err != nil {
		return core.Summary{}, err
	}

	current := &run{
		driver: d,
		suite:  suite,
		runID:  runID,
		set:    set,
		store:  store,
		log:    log,
		summary: core.Summary{
			Suite: suite.Name,
			RunID: runID,
		},
	}

	var group errgroup.Group

	group.SetLimit(d.config.Parallel)

	for _, index := range order {
		group.Go(func() error {
			if ctx.Err() != nil {
				current.finish(current.interrupted(ctx, index))

				return nil
			}

			current.finish(current.test(ctx, index))

			return nil
		})
	}

	_ = group.Wait()

	current.summary.Duration = time.Since(start)

	if d.reporter != nil {
		d.reporter.Finish(current.summary)
	}

	log.Info("run finished", zap.Stringer("summary", current.summary))

	return current.summary, ctx.Err()
}

// payload is the encoded body of a child's message.
type payload struct {
	Violations []core.Violation `json:"violations,omitempty"`
	Tallies    []core.Tally     `json:"tallies,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// run is the state shared by the tests of one Run call.
type run struct {
	driver *Driver
	suite  core.Suite
	runID  string
	set    *channel.Set
	store  *history.Store
	log    *zap.Logger

	mu      sync.Mutex
	summary core.Summary
}

// unexported variables.
var (
	errNoOutcome = errors.New("child exited without posting a result")
	errNotYet    = errors.New("no result yet")
)

// await polls ch until a message arrives, the child exits without one, or timeout passes.
func (r *run) await(ctx context.Context, ch *channel.Channel, child *process, timeout time.Duration) (
	channel.Message, error,
) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.driver.config.PollInitial
	expo.MaxInterval = r.driver.config.PollMax

	poll := func() (channel.Message, error) {
		message, ok, err := ch.Poll()
		if err != nil {
			return message, backoff.Permanent(err)
		}

		if ok {
			return message, nil
		}

		select {
		case <-child.done:
			// the child may have posted between the poll and its exit
			message, ok, err = ch.Poll()
			if err != nil {
				return message, backoff.Permanent(err)
			}

			if ok {
				return message, nil
			}

			return message, backoff.Permanent(fmt.Errorf("%w: %w", errNoOutcome, exitError(child.err)))
		default:
			return message, errNotYet
		}
	}

	// the deadline is ctx's; an elapsed-time cap would give up a poll interval early
	return backoff.Retry(ctx, poll,
		backoff.WithBackOff(expo),
		backoff.WithMaxElapsedTime(0),
	)
}

// finish records one test's result.
func (r *run) finish(record core.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary.Add(record.Outcome)

	if r.driver.reporter != nil {
		r.driver.reporter.Report(record)
	}

	err := r.store.Record(record)
	if err != nil {
		r.log.Warn("failed to record history", zap.String("test", record.Test), zap.Error(err))
	}
}

// interrupted is the record of a test never started because the run was cancelled.
func (r *run) interrupted(ctx context.Context, index int) core.Record {
	return core.Record{
		Suite:   r.suite.Name,
		Test:    r.suite.Tests[index].Name,
		RunID:   r.runID,
		Outcome: core.Error,
		Message: fmt.Sprintf("run interrupted: %v", ctx.Err()),
	}
}

// test runs the test at index in a child process and classifies the result.
func (r *run) test(ctx context.Context, index int) core.Record {
	test := r.suite.Tests[index]
	log := r.log.With(zap.String("test", test.Name))
	start := time.Now()

	record := core.Record{Suite: r.suite.Name, Test: test.Name, RunID: r.runID}
	fail := func(outcome core.Outcome, message string) core.Record {
		record.Outcome = outcome
		record.Message = message
		record.Duration = time.Since(start)

		return record
	}

	ch, err := r.set.Create(channel.Tag(index))
	if err != nil {
		log.Error("failed to create result channel", zap.Error(err))

		return fail(core.Error, err.Error())
	}

	defer func() {
		destroyErr := ch.Destroy()
		if destroyErr != nil {
			log.Warn("failed to destroy result channel", zap.Error(destroyErr))
		}
	}()

	cmd, err := r.driver.command(test.Name)
	if err != nil {
		return fail(core.Error, err.Error())
	}

	var stderr bytes.Buffer

	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}

	cmd.Env = append(cmd.Environ(),
		EnvSuite+"="+r.suite.Name,
		EnvChild+"="+test.Name,
		EnvMailbox+"="+r.set.Root(),
		EnvChannel+"="+string(ch.ID()),
	)

	err = cmd.Start()
	if err != nil {
		log.Error("failed to start child", zap.Error(err))

		return fail(core.Error, fmt.Sprintf("starting child: %v", err))
	}

	log.Debug("spawned child", zap.Int("pid", cmd.Process.Pid), zap.String("channel", string(ch.ID())))

	child := watch(cmd)

	timeout := test.Timeout
	if timeout <= 0 {
		timeout = r.driver.config.Timeout
	}

	message, err := r.await(ctx, ch, child, timeout)

	switch {
	case err == nil:
		child.reap(timeout)
	case errors.Is(err, errNoOutcome):
		log.Warn("child crashed", zap.Error(err))

		return fail(core.Crashed, crashMessage(err, stderr.String()))
	case errors.Is(err, errNotYet), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		child.kill()

		if ctx.Err() != nil {
			return fail(core.Error, fmt.Sprintf("run interrupted: %v", ctx.Err()))
		}

		log.Warn("child timed out", zap.Duration("timeout", timeout))

		return fail(core.Timeout, fmt.Sprintf("no result within %s", timeout))
	default:
		child.kill()
		log.Error("failed to read result channel", zap.Error(err))

		return fail(core.Error, err.Error())
	}

	return r.decode(record, message, start)
}

// decode fills record from a child's message.
func (r *run) decode(record core.Record, message channel.Message, start time.Time) core.Record {
	record.Duration = time.Since(start)
	record.Outcome = core.Outcome(message.Result)

	if !record.Outcome.Valid() {
		record.Outcome = core.Error
		record.Message = fmt.Sprintf("child reported unknown result %d", message.Result)

		return record
	}

	var body payload

	if len(message.Payload) > 0 {
		err := json.Unmarshal(message.Payload, &body)
		if err != nil {
			record.Outcome = core.Error
			record.Message = fmt.Sprintf("decoding child result: %v", err)

			return record
		}
	}

	record.Violations = body.Violations
	record.Tallies = body.Tallies
	record.Message = body.Message

	return record
}

func (d *Driver) order(store *history.Store, suite core.Suite) ([]int, error) {
	names := make([]string, len(suite.Tests))
	for index, test := range suite.Tests {
		names[index] = test.Name
	}

	if d.config.FailedFirst {
		return store.Prioritize(suite.Name, names)
	}

	order := make([]int, len(names))
	for index := range order {
		order[index] = index
	}

	return order, nil
}

func crashMessage(err error, stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err.Error()
	}

	const maxStderr = 4096
	if len(stderr) > maxStderr {
		stderr = "..." + stderr[len(stderr)-maxStderr:]
	}

	return err.Error() + "\n" + stderr
}

// exitError describes how a child ended.
func exitError(err error) error {
	if err == nil {
		return errors.New("exit status 0") //nolint:err113 // description, not a sentinel
	}

	return err
}

// process is a started child. err is valid once done is closed.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func watch(cmd *exec.Cmd) *process {
	child := &process{cmd: cmd, done: make(chan struct{})}

	go func() {
		child.err = cmd.Wait()
		close(child.done)
	}()

	return child
}

// kill stops the child and waits for it to be reaped.
func (p *process) kill() {
	_ = p.cmd.Process.Kill()
	<-p.done
}

// reap waits for a child that already posted its result to exit, killing it after grace.
func (p *process) reap(grace time.Duration) {
	select {
	case <-p.done:
	case <-time.After(grace):
		p.kill()
	}
}
