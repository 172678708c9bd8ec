package util

import (
	"bytes"
	"io"
	"log"
)

type LogLevel byte

const (
	LogLevelTrace   LogLevel = 0
	LogLevelDebug   LogLevel = 1
	LogLevelEnabled LogLevel = 2
)

// Buffers log output until a destination is attached, so that protocol
// packages can log unconditionally without losing early messages.
type logBuffer struct {
	buffer *bytes.Buffer
	output io.Writer
}

func newLogBuffer() *logBuffer {
	return &logBuffer{
		buffer: new(bytes.Buffer),
		output: nil,
	}
}

func (logBuf *logBuffer) Write(p []byte) (n int, err error) {
	if logBuf.output == nil {
		return logBuf.buffer.Write(p)
	}
	return logBuf.output.Write(p)
}

func (logBuf *logBuffer) setOutput(output io.Writer) {
	if logBuf.buffer.Len() > 0 {
		b, _ := io.ReadAll(logBuf.buffer)
		output.Write(b)
	}
	logBuf.output = output
}

var enabledLogOutput *logBuffer = newLogBuffer()
var debugLogOutput *logBuffer = newLogBuffer()
var traceLogOutput *logBuffer = newLogBuffer()

// SetLogOutput attaches a destination for enabled-level logging.
func SetLogOutput(out io.Writer) {
	enabledLogOutput.setOutput(out)
}

// SetLogLevel routes the lower log levels into the enabled output.
// Key material is only ever logged at trace level.
func SetLogLevel(level LogLevel) {
	if level <= LogLevelTrace {
		traceLogOutput.setOutput(debugLogOutput)
	}
	if level <= LogLevelDebug {
		debugLogOutput.setOutput(enabledLogOutput)
	}
}

func NewLogger(prefix string, level LogLevel) *log.Logger {
	switch level {
	case LogLevelEnabled:
		return log.New(enabledLogOutput, prefix, 0)
	case LogLevelDebug:
		return log.New(debugLogOutput, prefix, 0)
	default:
		return log.New(traceLogOutput, prefix, 0)
	}
}
