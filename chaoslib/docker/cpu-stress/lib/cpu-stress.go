package lib

import (
	"context"
	"strconv"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/runtime"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/sirupsen/logrus"
)

// InjectCPUStress launches a detached cpu contention load inside the target
// and returns immediately. The stress tool times itself out at the fault
// duration, so there is nothing to recover.
func InjectCPUStress(ctx context.Context, client runtime.Client, target runtime.Container, chaos types.ChaosConfig) error {

	log.InfoWithValues("[Chaos]: Launching cpu stress inside the target container", logrus.Fields{
		"Target":   target.Name,
		"Cores":    2,
		"Duration": chaos.DurationSeconds,
	})

	stressCmd := []string{"stress", "--cpu", "2", "--timeout", strconv.Itoa(chaos.DurationSeconds)}
	if err := client.ExecInContainer(ctx, target.ID, stressCmd, true); err != nil {
		return cerrors.FaultInjection{Target: target.Name, Kind: string(types.CPUStress), Reason: err.Error()}
	}

	log.Infof("[Chaos]: CPU stress running detached on %v for %vs", target.Name, chaos.DurationSeconds)
	return nil
}
