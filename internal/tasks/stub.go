package tasks

import (
	"context"

	"idlebot/internal/task/schedule"
	logx "idlebot/pkg/logx"
)

// stub stands in for a game routine that has no implementation yet.
func (c *Catalog) stub(name string) schedule.Func {
	return func(ctx context.Context, args ...string) error {
		c.log.Info(name+": not implemented", logx.Strings("args", args))
		return nil
	}
}
