package runner

import (
	"fmt"
	"time"

	"github.com/vmeassist/opsd/internal/task"
)

// DefaultRun returns the task executor. In fake mode it emits a fixed
// sequence of ticks with small delays then a done event, which is what the
// deterministic tests and demos consume. The real path is a stub for the
// agent integration: it logs the start, does nothing useful yet, and
// reports done.
func DefaultRun(fake bool) RunFunc {
	if fake {
		return func(title, body string, emit EmitFunc) error {
			for i := 1; i <= 4; i++ {
				emit(task.KindTick, map[string]any{"seq": i, "msg": fmt.Sprintf("tick %d", i)})
				time.Sleep(120 * time.Millisecond)
			}
			emit(task.KindDone, map[string]any{"msg": "done"})

			return nil
		}
	}

	return func(title, body string, emit EmitFunc) error {
		emit(task.KindLog, map[string]any{"msg": "starting real run (no-op in this stub)"})
		time.Sleep(200 * time.Millisecond)
		emit(task.KindDone, map[string]any{"msg": "done"})

		return nil
	}
}
