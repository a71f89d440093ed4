package chaosclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/types"
)

// Client talks to the chaos controller's service boundary. Injection and
// recovery both cross the network; every failure mode (unreachable backend,
// rejected command, unknown target) surfaces as an error the orchestrator
// folds into its verdict.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the controller at baseURL. The transport timeout
// is generous because pause and network-delay applies hold the connection
// open for the full fault duration.
func New(baseURL string, maxFaultDuration time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: maxFaultDuration + 30*time.Second},
	}
}

// Inject asks the controller to apply the fault. For pause and network
// delay the call blocks until the fault self-expires; an apply-half failure
// still returns promptly.
func (c *Client) Inject(ctx context.Context, chaos types.ChaosConfig) error {
	body, err := json.Marshal(chaos)
	if err != nil {
		return cerrors.FaultInjection{Target: chaos.TargetService, Kind: string(chaos.ExperimentType), Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/experiment", bytes.NewReader(body))
	if err != nil {
		return cerrors.FaultInjection{Target: chaos.TargetService, Kind: string(chaos.ExperimentType), Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return cerrors.FaultInjection{Target: chaos.TargetService, Kind: string(chaos.ExperimentType), Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cerrors.FaultInjection{
			Target: chaos.TargetService,
			Kind:   string(chaos.ExperimentType),
			Reason: fmt.Sprintf("controller returned %d: %s", resp.StatusCode, readDetail(resp.Body)),
		}
	}
	return nil
}

// Recover asks the controller to restore the target to a running state.
func (c *Client) Recover(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recover/"+target, nil)
	if err != nil {
		return cerrors.Recovery{Target: target, Reason: err.Error()}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return cerrors.Recovery{Target: target, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cerrors.Recovery{
			Target: target,
			Reason: fmt.Sprintf("controller returned %d: %s", resp.StatusCode, readDetail(resp.Body)),
		}
	}
	return nil
}

func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no detail"
	}

	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return string(raw)
}
