package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{Enabled: false, ApplicationName: "quota-engine"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop(), "stop is idempotent")
}

func TestNewProfiler_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProfilerConfig
		wantErr string
	}{
		{
			name:    "missing server address",
			cfg:     ProfilerConfig{Enabled: true, ApplicationName: "quota-engine"},
			wantErr: "server address is required",
		},
		{
			name:    "missing application name",
			cfg:     ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"},
			wantErr: "application name is required",
		},
		{
			name: "unknown profile type",
			cfg: ProfilerConfig{
				Enabled:         true,
				ServerAddress:   "http://localhost:4040",
				ApplicationName: "quota-engine",
				ProfileTypes:    []string{"cpu", "gpu"},
			},
			wantErr: `unknown profile type "gpu"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProfiler(tt.cfg, zaptest.NewLogger(t))
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseProfileTypes(t *testing.T) {
	types, err := ParseProfileTypes(nil)
	require.NoError(t, err)
	assert.Contains(t, types, pyroscope.ProfileCPU)
	assert.Contains(t, types, pyroscope.ProfileInuseSpace)

	types, err = ParseProfileTypes([]string{" CPU ", "mutex_duration"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileMutexDuration}, types)
}

func TestSanitizeLabels(t *testing.T) {
	long := strings.Repeat("x", MaxLabelValueLength+10)
	pairs := sanitizeLabels(map[string]string{
		"Operation":  "enforcement_sweep",
		"tenant_id":  "6f1c",
		"request_id": "req-1",
		"route":      long,
		"dimension":  "",
		"!!!":        "dropped",
	})

	assert.Equal(t, []string{
		"operation", "enforcement_sweep",
		"route", long[:MaxLabelValueLength],
	}, pairs)
}

func TestWithProfilingLabels(t *testing.T) {
	t.Run("applies pprof labels", func(t *testing.T) {
		called := false
		WithProfilingLabels(context.Background(), OperationLabels("enforcement_sweep", nil), func(ctx context.Context) {
			called = true
			value, ok := pprof.Label(ctx, ProfilingLabelOperation)
			assert.True(t, ok)
			assert.Equal(t, "enforcement_sweep", value)
		})
		assert.True(t, called)
	})

	t.Run("runs fn without labels", func(t *testing.T) {
		called := false
		WithProfilingLabels(context.Background(), map[string]string{"tenant_id": "6f1c"}, func(ctx context.Context) {
			called = true
			_, ok := pprof.Label(ctx, "tenant_id")
			assert.False(t, ok)
		})
		assert.True(t, called)
	})
}

func TestHTTPRequestLabels(t *testing.T) {
	labels := HTTPRequestLabels("/api/v1/sdk/policy", "GET")
	assert.Equal(t, "/api/v1/sdk/policy", labels[ProfilingLabelRoute])
	assert.Equal(t, "GET", labels[ProfilingLabelMethod])
}
