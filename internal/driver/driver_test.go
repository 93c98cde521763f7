package driver_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/toejough/forktest/internal/core"
	"github.com/toejough/forktest/internal/driver"
	"github.com/toejough/forktest/internal/history"
	"github.com/toejough/forktest/report"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestMain turns the test binary into a forktest child when the driver spawned it.
func TestMain(m *testing.M) {
	if os.Getenv("DRIVER_TEST_SILENT") != "" {
		os.Exit(0)
	}

	if env, ok := driver.ChildFromEnv(os.Getenv); ok {
		os.Exit(driver.RunChild(suite, env, zap.NewNop()))
	}

	os.Exit(m.Run())
}

//nolint:gochecknoglobals // shared by the parent and its children
var suite = core.Suite{
	Name: "driver",
	Tests: []core.Test{
		{Name: "passes", Body: func(t *core.T) {
			t.WillRespond("double", 4, 2)

			if got := t.Call("double", 2); got != 4 {
				t.Errorf("double(2) = %v", got)
			}

			t.Logf("doubled")
		}},
		{Name: "fails", Body: func(t *core.T) {
			t.Expect("f", 1)
			t.Expect("f", 2)
			t.Call("f", 2)
			t.Call("f", 1)
		}},
		{Name: "crashes", Body: func(*core.T) {
			_, _ = os.Stderr.WriteString("going down\n")
			os.Exit(3)
		}},
		{Name: "hangs", Timeout: 500 * time.Millisecond, Body: func(*core.T) {
			time.Sleep(time.Minute)
		}},
		{Name: "panics", Body: func(*core.T) {
			panic("kaboom")
		}},
	},
}

func testConfig(t *testing.T) driver.Config {
	t.Helper()

	config := driver.DefaultConfig()
	config.MailboxDir = filepath.Join(t.TempDir(), "mailboxes")
	config.Parallel = 3
	config.Timeout = 30 * time.Second

	return config
}

// TestRun_ClassifiesOutcomes verifies each kind of test ends in the right outcome, and that the
// run's mailboxes are cleaned up.
func TestRun_ClassifiesOutcomes(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	config := testConfig(t)
	collector := &report.Collector{}
	logCore, logs := observer.New(zap.InfoLevel)

	summary, err := driver.New(
		driver.WithConfig(config),
		driver.WithReporter(collector),
		driver.WithLogger(zap.New(logCore)),
	).Run(context.Background(), suite)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(summary.Total).To(Equal(5))
	g.Expect(summary.Passed).To(Equal(1))
	g.Expect(summary.Failed).To(Equal(2))
	g.Expect(summary.Crashed).To(Equal(1))
	g.Expect(summary.TimedOut).To(Equal(1))

	passes, _ := collector.Record("passes")
	g.Expect(passes.Outcome).To(Equal(core.Pass))
	g.Expect(passes.Message).To(Equal("doubled"))
	g.Expect(passes.Tallies).To(HaveLen(1))

	fails, _ := collector.Record("fails")
	g.Expect(fails.Outcome).To(Equal(core.Fail))
	g.Expect(fails.Violations).NotTo(BeEmpty())
	g.Expect(fails.Violations[0].Kind).To(Equal(core.OrderingViolation))

	crashes, _ := collector.Record("crashes")
	g.Expect(crashes.Outcome).To(Equal(core.Crashed))
	g.Expect(crashes.Message).To(ContainSubstring("going down"))

	hangs, _ := collector.Record("hangs")
	g.Expect(hangs.Outcome).To(Equal(core.Timeout))
	g.Expect(hangs.Duration).To(BeNumerically(">=", 500*time.Millisecond))

	panics, _ := collector.Record("panics")
	g.Expect(panics.Outcome).To(Equal(core.Fail))
	g.Expect(panics.Violations[0].Kind).To(Equal(core.Panicked))

	_, finished := collector.Summary()
	g.Expect(finished).To(BeTrue())

	entries, err := os.ReadDir(config.MailboxDir)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(entries).To(BeEmpty())

	g.Expect(logs.FilterMessage("child timed out").Len()).To(Equal(1))
	g.Expect(logs.FilterMessage("child crashed").Len()).To(Equal(1))
}

// TestRun_FailedFirst verifies tests that failed in the previous run are run first.
func TestRun_FailedFirst(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	store, err := history.Open("")
	g.Expect(err).NotTo(HaveOccurred())

	defer store.Close()

	subset := core.Suite{Name: suite.Name, Tests: []core.Test{suite.Tests[0], suite.Tests[1]}}
	config := testConfig(t)
	config.Parallel = 1

	first := &report.Collector{}
	_, err = driver.New(driver.WithConfig(config), driver.WithHistory(store), driver.WithReporter(first)).
		Run(context.Background(), subset)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(testNames(first.Records())).To(Equal([]string{"passes", "fails"}))

	second := &report.Collector{}
	_, err = driver.New(driver.WithConfig(config), driver.WithHistory(store), driver.WithReporter(second)).
		Run(context.Background(), subset)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(testNames(second.Records())).To(Equal([]string{"fails", "passes"}))

	entry, found, err := store.Last(suite.Name, "fails")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(found).To(BeTrue())
	g.Expect(entry.Outcome).To(Equal(core.Fail))
}

// TestRun_TimeoutNotBeforeDeadline verifies a hung child is only labelled timed out once its full
// timeout has passed, even when the poll interval is a large share of it.
func TestRun_TimeoutNotBeforeDeadline(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	config := testConfig(t)
	config.PollMax = 400 * time.Millisecond

	collector := &report.Collector{}
	subset := core.Suite{Name: suite.Name, Tests: []core.Test{suite.Tests[3]}}

	_, err := driver.New(driver.WithConfig(config), driver.WithReporter(collector)).
		Run(context.Background(), subset)
	g.Expect(err).NotTo(HaveOccurred())

	hangs, found := collector.Record("hangs")
	g.Expect(found).To(BeTrue())
	g.Expect(hangs.Outcome).To(Equal(core.Timeout))
	g.Expect(hangs.Duration).To(BeNumerically(">=", suite.Tests[3].Timeout))
}

// TestRun_Cancelled verifies every test of a cancelled run is still reported, as an error.
func TestRun_Cancelled(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collector := &report.Collector{}

	summary, err := driver.New(driver.WithConfig(testConfig(t)), driver.WithReporter(collector)).Run(ctx, suite)
	g.Expect(err).To(MatchError(context.Canceled))
	g.Expect(summary.Total).To(Equal(len(suite.Tests)))
	g.Expect(summary.Errored).To(Equal(len(suite.Tests)))

	for _, record := range collector.Records() {
		g.Expect(record.Outcome).To(Equal(core.Error))
		g.Expect(record.Message).To(ContainSubstring("run interrupted"))
	}
}

// TestRun_InvalidSuite verifies a suite with duplicate names is refused before anything runs.
func TestRun_InvalidSuite(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	body := func(*core.T) {}
	bad := core.Suite{Name: "bad", Tests: []core.Test{{Name: "a", Body: body}, {Name: "a", Body: body}}}

	_, err := driver.New(driver.WithConfig(testConfig(t))).Run(context.Background(), bad)
	g.Expect(err).To(MatchError(core.ErrDuplicateTest))
}

// TestRun_CommandFailure verifies a child that cannot be started is an infrastructure error.
func TestRun_CommandFailure(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	collector := &report.Collector{}
	missing := func(string) (*exec.Cmd, error) {
		return exec.Command(filepath.Join(t.TempDir(), "does-not-exist")), nil
	}

	subset := core.Suite{Name: "missing", Tests: []core.Test{suite.Tests[0]}}

	summary, err := driver.New(
		driver.WithConfig(testConfig(t)),
		driver.WithCommand(missing),
		driver.WithReporter(collector),
	).Run(context.Background(), subset)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(summary.Errored).To(Equal(1))

	record, _ := collector.Record("passes")
	g.Expect(record.Outcome).To(Equal(core.Error))
	g.Expect(record.Message).To(ContainSubstring("starting child"))
}

// TestRun_SilentChild verifies a child that exits cleanly without posting counts as crashed.
func TestRun_SilentChild(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	collector := &report.Collector{}
	subset := core.Suite{Name: "silent", Tests: []core.Test{suite.Tests[0]}}

	command := func(string) (*exec.Cmd, error) {
		cmd := exec.Command(os.Args[0], "-test.run=^$")
		cmd.Env = append(os.Environ(), "DRIVER_TEST_SILENT=1")

		return cmd, nil
	}

	_, err := driver.New(
		driver.WithConfig(testConfig(t)),
		driver.WithCommand(command),
		driver.WithReporter(collector),
	).Run(context.Background(), subset)
	g.Expect(err).NotTo(HaveOccurred())

	record, _ := collector.Record("passes")
	g.Expect(record.Outcome).To(Equal(core.Crashed))
	g.Expect(record.Message).To(ContainSubstring("exit status 0"))
}

func testNames(records []core.Record) []string {
	names := make([]string, len(records))
	for index, record := range records {
		names[index] = record.Test
	}

	return names
}
