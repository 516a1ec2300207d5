package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"idlebot/internal/task/schedule"
	logx "idlebot/pkg/logx"
)

const outputTail = 512

// command runs an external program. A single argument is split like a shell
// command line ("python click.py --x 10"); several arguments are used as argv.
func (c *Catalog) command(name string) schedule.Func {
	return func(ctx context.Context, args ...string) error {
		argv, err := commandArgv(args)
		if err != nil {
			return err
		}

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = c.cfg.CommandDir
		// Bound how long pipes may linger after the process is killed.
		cmd.WaitDelay = 2 * time.Second
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		start := time.Now()
		err = cmd.Run()
		c.log.Debug("command finished",
			logx.String("job", name),
			logx.Strings("argv", argv),
			logx.Duration("dur", time.Since(start)),
			logx.String("output", tail(out.String(), outputTail)),
		)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s: %w", argv[0], ctx.Err())
			}
			return fmt.Errorf("%s: %w: %s", argv[0], err, tail(strings.TrimSpace(out.String()), outputTail))
		}
		return nil
	}
}

func commandArgv(args []string) ([]string, error) {
	switch len(args) {
	case 0:
		return nil, errors.New("command task needs a program")
	case 1:
		argv, err := shellquote.Split(args[0])
		if err != nil {
			return nil, fmt.Errorf("parse command %q: %w", args[0], err)
		}
		if len(argv) == 0 {
			return nil, errors.New("command task needs a program")
		}
		return argv, nil
	default:
		return args, nil
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
