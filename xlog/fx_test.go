package xlog

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxevent"
)

func TestFxXLogger_LogEvent(t *testing.T) {
	var nilLogger *FxXLogger
	nilLogger.LogEvent(&fxevent.Started{})

	parent, w := newTestMemLogger(t)
	logger := NewFxXLogger(parent)

	logger.LogEvent(&fxevent.OnStartExecuting{FunctionName: "start", CallerName: "main"})
	logger.LogEvent(&fxevent.OnStartExecuted{FunctionName: "start", Runtime: time.Millisecond})
	logger.LogEvent(&fxevent.OnStopExecuted{FunctionName: "stop", Err: errors.New("stop failed")})
	logger.LogEvent(&fxevent.Provided{ConstructorName: "NewRunner", OutputTypeNames: []string{"*bench.Runner"}})
	logger.LogEvent(&fxevent.Invoked{FunctionName: "run"})
	logger.LogEvent(&fxevent.Stopping{Signal: os.Interrupt})
	logger.LogEvent(&fxevent.Started{})

	lines := w.lines(t)
	require.Len(t, lines, 6)
	for _, line := range lines {
		require.Equal(t, "Fx", line["component"])
	}
	require.Equal(t, "HOOK OnStart", lines[0]["msg"])
	require.Equal(t, "HOOK OnStart successfully", lines[1]["msg"])
	require.Equal(t, "HOOK OnStop failed", lines[2]["msg"])
	require.Equal(t, "stop failed", lines[2]["error"])
	require.Equal(t, "*bench.Runner", lines[3]["rtype"])
	require.Equal(t, "STOPPING", lines[4]["msg"])
	require.Equal(t, "interrupt", lines[4]["signal"])
	require.Equal(t, "RUNNING", lines[5]["msg"])
}
