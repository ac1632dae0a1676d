package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "pspind"

// New creates the process logger. Console output is human readable; json is one event
// per line. With logSampler, debug and info events are sampled 1 in 5 while warnings
// and errors always pass.
func New(logLevel int, logFormat string, logSampler bool) zerolog.Logger {
	return newWithWriter(os.Stdout, logLevel, logFormat, logSampler)
}

func newWithWriter(out io.Writer, logLevel int, logFormat string, logSampler bool) zerolog.Logger {
	level := zerolog.Level(logLevel)

	var writer io.Writer = out
	if logFormat != "json" {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(writer).Level(level).With().Timestamp().Str("service", serviceName)
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	logger := ctx.Logger()

	if logSampler {
		sampler := &zerolog.BasicSampler{N: 5}
		logger = logger.Sample(zerolog.LevelSampler{
			TraceSampler: sampler,
			DebugSampler: sampler,
			InfoSampler:  sampler,
		})
	}
	return logger
}
