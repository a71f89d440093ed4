package lib

import (
	"context"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/runtime"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/sirupsen/logrus"
)

// InjectContainerKill stops the target container. The container stays down
// until the separate recover operation starts it again; kill is the one
// primitive whose recovery is never part of apply.
func InjectContainerKill(ctx context.Context, client runtime.Client, target runtime.Container, chaos types.ChaosConfig) error {

	log.InfoWithValues("[Chaos]: Stopping the target container", logrus.Fields{
		"Target":    target.Name,
		"Container": target.ID,
	})

	if err := client.StopContainer(ctx, target.ID); err != nil {
		return cerrors.FaultInjection{Target: target.Name, Kind: string(types.ContainerKill), Reason: err.Error()}
	}

	log.Infof("[Chaos]: Container %v stopped, it stays down until recovery", target.Name)
	return nil
}
