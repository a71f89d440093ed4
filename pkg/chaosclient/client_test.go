package chaosclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eris-chaos/eris/pkg/cerrors"
	"github.com/eris-chaos/eris/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectPostsChaosConfig(t *testing.T) {
	var received types.ChaosConfig
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/experiment", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, time.Minute)
	err := client.Inject(context.Background(), types.ChaosConfig{
		TargetService:   "search-service",
		ExperimentType:  types.NetworkDelay,
		DurationSeconds: 60,
		Intensity:       200,
	})
	require.NoError(t, err)
	assert.Equal(t, "search-service", received.TargetService)
	assert.Equal(t, types.NetworkDelay, received.ExperimentType)
	assert.Equal(t, 200, received.Intensity)
}

func TestInjectSurfacesControllerRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "no matching workload instance"})
	}))
	defer server.Close()

	client := New(server.URL, time.Minute)
	err := client.Inject(context.Background(), types.ChaosConfig{
		TargetService:  "billing",
		ExperimentType: types.ContainerKill,
	})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeFaultInjection, cerrors.GetErrorType(err))
	assert.Contains(t, err.Error(), "no matching workload instance")
	assert.Contains(t, err.Error(), "404")
}

func TestInjectUnreachableController(t *testing.T) {
	client := New("http://127.0.0.1:1", time.Second)
	err := client.Inject(context.Background(), types.ChaosConfig{
		TargetService:  "search-service",
		ExperimentType: types.ContainerKill,
	})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeFaultInjection, cerrors.GetErrorType(err))
}

func TestRecoverHitsRecoverEndpoint(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, time.Minute)
	require.NoError(t, client.Recover(context.Background(), "search-service"))
	assert.Equal(t, "/recover/search-service", path)
}

func TestRecoverSurfacesFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "docker daemon unavailable"})
	}))
	defer server.Close()

	client := New(server.URL, time.Minute)
	err := client.Recover(context.Background(), "search-service")
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeRecovery, cerrors.GetErrorType(err))
	assert.Contains(t, err.Error(), "docker daemon unavailable")
}
