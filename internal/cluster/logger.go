package cluster

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// newRaftLogger returns the hclog.Logger handed to Raft.
// An empty level silences Raft, which is chatty at info level.
func newRaftLogger(level string) hclog.Logger {
	if level == "" {
		return newHCLogger(io.Discard, hclog.Off)
	}
	return newHCLogger(os.Stderr, hclog.LevelFromString(level))
}

func newHCLogger(w io.Writer, level hclog.Level) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  level,
		Output: w,
	})
}
