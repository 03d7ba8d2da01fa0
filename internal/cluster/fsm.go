// Package cluster replicates a shared bandwidth estimate across simulator nodes using Raft.
//
// Every node reads the replicated estimate through the bandwidth.Meter interface,
// so players on all nodes evaluate against the same network observation.
// Only the leader accepts new estimates.
package cluster

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/agleyzer/abrsim/internal/bandwidth"
)

func init() {
	// Register types for gob encoding/decoding
	gob.Register(SetEstimateCommand{})
}

// EstimateState is the replicated state.
type EstimateState struct {
	// BitsPerSecond is the latest estimate, meaningful only when Known is set.
	BitsPerSecond int64
	// Known is false until an estimate has been published.
	Known bool
	// Revision counts applied estimate changes.
	Revision uint64
}

// Estimate converts the state to a bandwidth estimate.
func (s EstimateState) Estimate() bandwidth.Estimate {
	if !s.Known {
		return bandwidth.Unknown()
	}
	return bandwidth.Known(s.BitsPerSecond)
}

// CommandType identifies the type of Raft command.
type CommandType uint8

const (
	// CommandSetEstimate replaces the shared estimate.
	CommandSetEstimate CommandType = 1
)

// Command represents a Raft log command.
type Command struct {
	Type CommandType
	Data any
}

// SetEstimateCommand replaces the estimate; Known false resets it to unknown.
type SetEstimateCommand struct {
	BitsPerSecond int64
	Known         bool
}

// NewSetEstimateCommand builds the command publishing e.
func NewSetEstimateCommand(e bandwidth.Estimate) Command {
	bps, known := e.BitsPerSecond()
	return Command{
		Type: CommandSetEstimate,
		Data: SetEstimateCommand{BitsPerSecond: bps, Known: known},
	}
}

// EstimateFSM implements the raft.FSM interface for the shared estimate.
// It also implements bandwidth.Meter.
type EstimateFSM struct {
	mu     sync.RWMutex
	state  EstimateState
	logger *slog.Logger
}

// NewEstimateFSM creates an FSM holding an unknown estimate.
func NewEstimateFSM(logger *slog.Logger) *EstimateFSM {
	return &EstimateFSM{logger: logger}
}

// Apply applies a Raft log entry to the FSM.
func (f *EstimateFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&cmd); err != nil {
		f.logger.Error("failed to decode command", "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case CommandSetEstimate:
		return f.applySetEstimate(cmd.Data)
	default:
		f.logger.Error("unknown command type", "type", cmd.Type)
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

// applySetEstimate replaces the estimate. Caller must hold the write lock.
func (f *EstimateFSM) applySetEstimate(data any) any {
	setCmd, ok := data.(SetEstimateCommand)
	if !ok {
		return fmt.Errorf("invalid set estimate command data")
	}

	f.state.Known = setCmd.Known
	f.state.BitsPerSecond = 0
	if setCmd.Known {
		f.state.BitsPerSecond = setCmd.BitsPerSecond
	}
	f.state.Revision++

	f.logger.Debug("applied estimate",
		"estimate", f.state.Estimate(),
		"revision", f.state.Revision,
	)
	return nil
}

// Snapshot returns an FSMSnapshot for creating a point-in-time snapshot.
func (f *EstimateFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{state: f.GetState()}, nil
}

// Restore restores the FSM state from a snapshot.
func (f *EstimateFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var state EstimateState
	if err := gob.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.state = state
	f.mu.Unlock()

	f.logger.Info("restored FSM state from snapshot", "estimate", state.Estimate(), "revision", state.Revision)
	return nil
}

// GetState returns a copy of the current FSM state.
func (f *EstimateFSM) GetState() EstimateState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.state
}

// Estimate implements bandwidth.Meter.
func (f *EstimateFSM) Estimate() bandwidth.Estimate {
	return f.GetState().Estimate()
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	state EstimateState
}

// Persist writes the snapshot to the given sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}

	return sink.Close()
}

// Release releases any resources held by the snapshot.
func (s *fsmSnapshot) Release() {}

// EncodeCommand encodes a command for Raft submission.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}
