package reminder

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	logx "taskpilot/pkg/logx"
)

// DefaultInterval is the tick period.
const DefaultInterval = time.Minute

// newRunner builds the cron runner that drives ticks. Jobs are not chained
// with SkipIfStillRunning: a slow tick may overlap the next one.
func newRunner(log logx.Logger) *cron.Cron {
	cl := cronLogger{log: log}
	return cron.New(
		cron.WithLocation(time.Local),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
}

// cronLogger routes cron's own logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
