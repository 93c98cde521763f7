package driver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/toejough/forktest/internal/channel"
	"github.com/toejough/forktest/internal/core"
	"go.uber.org/zap"
)

// Environment variables through which the driver tells a child what to run and where to report.
const (
	EnvChild   = "FORKTEST_CHILD"
	EnvMailbox = "FORKTEST_MAILBOX"
	EnvChannel = "FORKTEST_CHANNEL"
	EnvSuite   = "FORKTEST_SUITE"
)

// ChildEnv is what a child process learns from its environment.
type ChildEnv struct {
	Suite   string
	Test    string
	Mailbox string
	Channel channel.ID
}

// ChildFromEnv reads the child protocol variables. It reports false when the process was not
// started by a driver. The suite name is optional.
func ChildFromEnv(getenv func(string) string) (ChildEnv, bool) {
	env := ChildEnv{
		Suite:   getenv(EnvSuite),
		Test:    getenv(EnvChild),
		Mailbox: getenv(EnvMailbox),
		Channel: channel.ID(getenv(EnvChannel)),
	}

	if env.Test == "" || env.Mailbox == "" || env.Channel == "" {
		return ChildEnv{}, false
	}

	return env, true
}

// RunChild runs the named test of suite in the current process and posts the outcome to the
// parent. It returns the process exit code: 0 for a pass, 1 for anything else, 2 when the
// outcome could not be posted.
func RunChild(suite core.Suite, env ChildEnv, log *zap.Logger) int {
	if log == nil {
		log = zap.NewNop()
	}

	log = log.With(zap.String("test", env.Test), zap.String("channel", string(env.Channel)))

	ch, err := channel.Attach(env.Mailbox, env.Channel)
	if err != nil {
		log.Error("failed to attach to result channel", zap.Error(err))

		return exitNoPost
	}

	outcome, body := execute(suite, env.Test)

	data, err := json.Marshal(body)
	if err != nil {
		outcome = core.Error
		data, _ = json.Marshal(payload{Message: fmt.Sprintf("encoding result: %v", err)})
	}

	err = ch.Post(int(outcome), data)
	if errors.Is(err, channel.ErrFull) {
		log.Warn("result already posted, dropping", zap.Stringer("outcome", outcome))
	} else if err != nil {
		log.Error("failed to post result", zap.Error(err))

		return exitNoPost
	}

	if outcome != core.Pass {
		return exitFailed
	}

	return exitPassed
}

const (
	exitPassed = 0
	exitFailed = 1
	exitNoPost = 2
)

func execute(suite core.Suite, name string) (core.Outcome, payload) {
	test, _, ok := suite.Lookup(name)
	if !ok {
		return core.Error, payload{Message: fmt.Sprintf("no test named %q in suite %q", name, suite.Name)}
	}

	outcome, report, logs := core.Execute(suite, test)

	return outcome, payload{Violations: report.Violations, Tallies: report.Tallies, Message: logs}
}
