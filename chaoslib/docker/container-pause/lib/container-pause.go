package lib

import (
	"context"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/runtime"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/eris-chaos/eris/pkg/utils/common"
	"github.com/sirupsen/logrus"
)

// PauseTarget freezes the target container. The caller runs this inside the
// target's exclusive section so the freeze never interleaves with a recover
// transition on the same target.
func PauseTarget(ctx context.Context, client runtime.Client, target runtime.Container, chaos types.ChaosConfig) error {

	log.InfoWithValues("[Chaos]: Pausing the target container", logrus.Fields{
		"Target":   target.Name,
		"Duration": chaos.DurationSeconds,
	})

	if err := client.PauseContainer(ctx, target.ID); err != nil {
		return cerrors.FaultInjection{Target: target.Name, Kind: string(types.ContainerPause), Reason: err.Error()}
	}
	return nil
}

// HoldAndThaw blocks for the fault duration, then thaws the target. It runs
// outside the exclusive section; the recover operation may thaw the
// container first, in which case the thaw half finds it already running and
// does nothing.
//
// A cancelled context cuts the wait short but never skips the thaw.
func HoldAndThaw(ctx context.Context, client runtime.Client, target runtime.Container, chaos types.ChaosConfig) error {
	if !common.WaitForDurationCtx(ctx, chaos.DurationSeconds) {
		log.Warnf("[Chaos]: Pause wait on %v cut short by cancellation, thawing now", target.Name)
	}

	return thawContainer(client, target)
}

// thawContainer unpauses the target. Cleanup runs on a fresh context so a
// cancelled apply still gets its thaw attempt, and a container that was
// already recovered out from under us is not an error.
func thawContainer(client runtime.Client, target runtime.Container) error {
	ctx := context.Background()

	details, err := client.InspectContainer(ctx, target.ID)
	if err != nil {
		return cerrors.Recovery{Target: target.Name, Reason: err.Error()}
	}
	if details.State != runtime.StatePaused {
		log.Infof("[Chaos]: Container %v is not paused anymore, skipping thaw", target.Name)
		return nil
	}

	if err := client.UnpauseContainer(ctx, target.ID); err != nil {
		return cerrors.Recovery{Target: target.Name, Reason: err.Error()}
	}
	log.Infof("[Chaos]: Container %v thawed after pause", target.Name)
	return nil
}
