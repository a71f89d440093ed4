package lib

import (
	"context"
	"strconv"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/runtime"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/eris-chaos/eris/pkg/utils/common"
	"github.com/sirupsen/logrus"
)

// AddNetworkDelay installs an egress netem delay of intensity milliseconds
// on the target's primary interface. The caller runs this inside the
// target's exclusive section.
func AddNetworkDelay(ctx context.Context, client runtime.Client, target runtime.Container, chaos types.ChaosConfig) error {

	log.InfoWithValues("[Chaos]: Injecting egress network delay", logrus.Fields{
		"Target":   target.Name,
		"Delay":    strconv.Itoa(chaos.Intensity) + "ms",
		"Duration": chaos.DurationSeconds,
	})

	addCmd := []string{"tc", "qdisc", "add", "dev", "eth0", "root", "netem", "delay", strconv.Itoa(chaos.Intensity) + "ms"}
	if err := client.ExecInContainer(ctx, target.ID, addCmd, false); err != nil {
		return cerrors.FaultInjection{Target: target.Name, Kind: string(types.NetworkDelay), Reason: err.Error()}
	}
	return nil
}

// HoldAndRemove blocks for the fault duration, then removes the qdisc. Like
// pause, the call holds for the full duration and a cancelled context skips
// the wait but not the cleanup.
func HoldAndRemove(ctx context.Context, client runtime.Client, target runtime.Container, chaos types.ChaosConfig) error {
	if !common.WaitForDurationCtx(ctx, chaos.DurationSeconds) {
		log.Warnf("[Chaos]: Delay wait on %v cut short by cancellation, removing qdisc now", target.Name)
	}

	return RemoveNetworkDelay(client, target)
}

// RemoveNetworkDelay deletes the netem qdisc from the target. It runs on a
// fresh context so cleanup survives a cancelled apply, and it is also called
// from the recover path when an abort fires mid-delay.
func RemoveNetworkDelay(client runtime.Client, target runtime.Container) error {
	delCmd := []string{"tc", "qdisc", "del", "dev", "eth0", "root"}
	if err := client.ExecInContainer(context.Background(), target.ID, delCmd, false); err != nil {
		return cerrors.Recovery{Target: target.Name, Reason: err.Error()}
	}
	log.Infof("[Chaos]: Network delay removed from %v", target.Name)
	return nil
}
