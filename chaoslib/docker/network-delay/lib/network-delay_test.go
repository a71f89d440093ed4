package lib

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/runtime"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execRuntime struct {
	mu        sync.Mutex
	execs     [][]string
	execErrOn string
}

func (f *execRuntime) ListContainers(ctx context.Context, all bool) ([]runtime.Container, error) {
	return nil, nil
}

func (f *execRuntime) InspectContainer(ctx context.Context, id string) (runtime.Container, error) {
	return runtime.Container{ID: id, State: runtime.StateRunning}, nil
}

func (f *execRuntime) StopContainer(ctx context.Context, id string) error    { return nil }
func (f *execRuntime) StartContainer(ctx context.Context, id string) error   { return nil }
func (f *execRuntime) PauseContainer(ctx context.Context, id string) error   { return nil }
func (f *execRuntime) UnpauseContainer(ctx context.Context, id string) error { return nil }

func (f *execRuntime) ExecInContainer(ctx context.Context, id string, cmd []string, detach bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErrOn != "" && strings.Contains(strings.Join(cmd, " "), f.execErrOn) {
		return assert.AnError
	}
	f.execs = append(f.execs, cmd)
	return nil
}

func delayTarget() runtime.Container {
	return runtime.Container{ID: "c1", Name: "product-service", State: runtime.StateRunning}
}

func TestAddThenHoldInstallsAndRemovesQdisc(t *testing.T) {
	rt := &execRuntime{}
	chaos := types.ChaosConfig{
		TargetService:   "product-service",
		ExperimentType:  types.NetworkDelay,
		DurationSeconds: 1,
		Intensity:       100,
	}

	require.NoError(t, AddNetworkDelay(context.Background(), rt, delayTarget(), chaos))
	require.NoError(t, HoldAndRemove(context.Background(), rt, delayTarget(), chaos))
	require.Len(t, rt.execs, 2)
	assert.Equal(t, []string{"tc", "qdisc", "add", "dev", "eth0", "root", "netem", "delay", "100ms"}, rt.execs[0])
	assert.Equal(t, []string{"tc", "qdisc", "del", "dev", "eth0", "root"}, rt.execs[1])
}

func TestAddNetworkDelayFailureIsFaultInjection(t *testing.T) {
	rt := &execRuntime{execErrOn: "qdisc add"}

	err := AddNetworkDelay(context.Background(), rt, delayTarget(), types.ChaosConfig{
		DurationSeconds: 1,
		Intensity:       100,
	})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeFaultInjection, cerrors.GetErrorType(err))
	assert.Empty(t, rt.execs, "no removal attempt when the qdisc was never installed")
}

func TestHoldAndRemoveFailureIsRecovery(t *testing.T) {
	rt := &execRuntime{execErrOn: "qdisc del"}

	err := HoldAndRemove(context.Background(), rt, delayTarget(), types.ChaosConfig{
		DurationSeconds: 1,
		Intensity:       100,
	})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeRecovery, cerrors.GetErrorType(err), "the fault landed, only cleanup failed")
}

func TestHoldAndRemoveCancelledContextStillRemoves(t *testing.T) {
	rt := &execRuntime{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := HoldAndRemove(ctx, rt, delayTarget(), types.ChaosConfig{
		DurationSeconds: 30,
		Intensity:       50,
	})
	require.NoError(t, err)
	require.Len(t, rt.execs, 1)
	assert.Equal(t, "del", rt.execs[0][2])
}
