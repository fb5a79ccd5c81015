package simulate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stableScope/internal/model"
	"stableScope/internal/storage"
)

type memorySink struct {
	batches [][]model.OperationResult
}

func (m *memorySink) PutResults(results []model.OperationResult) error {
	batch := make([]model.OperationResult, len(results))
	copy(batch, results)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memorySink) all() []model.OperationResult {
	var out []model.OperationResult
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

const opsJSONL = `{"op":"swap","from":0,"to":1,"amount":"1000000"}

{"op":"invariant"}
not json
{"op":"swap","from":0,"to":1}
{"op":"swap","from":1,"to":0,"amount":"9994902"}
`

func TestRunnerRun(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state", "sim.json")
	store := &FileStateStore{Path: statePath}
	sink := &memorySink{}

	runner := NewRunner(RunConfig{Name: "foo-bar", BatchSize: 2, StateStore: store}, NewSimulator(fooBarPool(t)), sink, nil)
	summary, err := runner.Run(context.Background(), strings.NewReader(opsJSONL))
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 5, Applied: 3, Failed: 2}, summary)
	require.Len(t, sink.batches, 3)

	results := sink.all()
	require.Len(t, results, 5)
	for i, res := range results {
		assert.Equal(t, uint64(i+1), res.Seq)
	}
	assert.Equal(t, []string{"0", "9994902"}, results[0].Out)
	assert.Equal(t, "20000004999", results[1].Invariant)
	assert.Contains(t, results[2].Error, "parse operation")
	assert.Contains(t, results[3].Error, ErrMissingAmount.Error())
	assert.Empty(t, results[4].Error)

	state, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), state.Processed)
	assert.Equal(t, "foo-bar", state.Name)
	assert.Equal(t, results[4].Balances, state.Balances)
	assert.NotEmpty(t, state.UpdatedAt)
}

func TestRunnerResume(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "sim.json")
	store := &FileStateStore{Path: statePath}

	// A previous run applied the first swap and stopped.
	require.NoError(t, store.Save(context.Background(), model.SimulationState{
		Name:        "foo-bar",
		Processed:   1,
		Balances:    []string{"1001000000", "9990005098"},
		TotalSupply: "0",
	}))

	sink := &memorySink{}
	runner := NewRunner(RunConfig{Name: "foo-bar", BatchSize: 10, StateStore: store}, NewSimulator(fooBarPool(t)), sink, nil)
	summary, err := runner.Run(context.Background(), strings.NewReader(opsJSONL))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), summary.Skipped)
	results := sink.all()
	require.Len(t, results, 4)
	assert.Equal(t, uint64(2), results[0].Seq)
	// The restored balances are the post-swap ones.
	assert.Equal(t, "20000004999", results[0].Invariant)

	again := &memorySink{}
	runner = NewRunner(RunConfig{Name: "foo-bar", StateStore: store}, NewSimulator(fooBarPool(t)), again, nil)
	summary, err = runner.Run(context.Background(), strings.NewReader(opsJSONL))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), summary.Skipped)
	assert.Empty(t, again.batches)
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(RunConfig{}, NewSimulator(fooBarPool(t)), &memorySink{}, nil)
	_, err := runner.Run(ctx, strings.NewReader(opsJSONL))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunnerJsonlSink(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.jsonl")
	runner := NewRunner(RunConfig{Name: "jsonl"}, NewSimulator(fooBarPool(t)), storage.NewJsonlStorage(out), nil)

	summary, err := runner.Run(context.Background(), strings.NewReader(`{"op":"invariant"}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), summary.Applied)
	assert.FileExists(t, out)
}

func TestFileStateStoreMissing(t *testing.T) {
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "absent.json")}
	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	var disabled *FileStateStore
	_, ok, err = disabled.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, disabled.Save(context.Background(), model.SimulationState{}))

	dir := &FileStateStore{Path: t.TempDir()}
	_, _, err = dir.Load(context.Background())
	require.Error(t, err)
}
