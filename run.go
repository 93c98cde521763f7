package forktest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/toejough/forktest/internal/driver"
	"github.com/toejough/forktest/report"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// EnvConfig names the environment variable holding the path of an optional config file.
const EnvConfig = "FORKTEST_CONFIG"

// Main runs the test binary. In a child process spawned by Run it executes the one requested
// test of suites and exits; otherwise it runs the binary's tests as usual. Call it from TestMain.
func Main(m *testing.M, suites ...Suite) {
	env, ok := driver.ChildFromEnv(os.Getenv)
	if !ok {
		os.Exit(m.Run())
	}

	os.Exit(driver.RunChild(pick(suites, env.Suite), env, childLogger()))
}

// Run runs every test of suite in its own child process, reporting each as a subtest of t.
// Configuration comes from the environment and the file named by FORKTEST_CONFIG; opts are
// applied after it.
func Run(t *testing.T, suite Suite, opts ...Option) Summary {
	t.Helper()

	config, err := driver.LoadConfig(os.Getenv(EnvConfig))
	if err != nil {
		t.Fatalf("forktest: %v", err)
	}

	defaults := []Option{
		driver.WithConfig(config),
		driver.WithReporter(report.NewTB(t)),
		driver.WithLogger(zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))),
	}

	summary, err := driver.New(append(defaults, opts...)...).Run(context.Background(), suite)
	if err != nil {
		t.Fatalf("forktest: %v", err)
	}

	return summary
}

// childLogger writes warnings to stderr, which the parent shows when a child crashes.
func childLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

	log, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}

	return log
}

// pick finds the suite a child should run in. A single suite is used whatever its name.
func pick(suites []Suite, name string) Suite {
	if len(suites) == 1 {
		return suites[0]
	}

	for _, suite := range suites {
		if suite.Name == name {
			return suite
		}
	}

	return Suite{Name: fmt.Sprintf("%s (unknown suite)", name)}
}
