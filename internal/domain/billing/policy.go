package billing

import "fmt"

// TelemetrySampling controls ingestion of one telemetry type
type TelemetrySampling struct {
	Rate    float64 `json:"rate"`
	Enabled bool    `json:"enabled"`
}

// SamplingPolicy holds sampling per telemetry type
type SamplingPolicy struct {
	APITraces TelemetrySampling `json:"api_traces"`
	Sessions  TelemetrySampling `json:"sessions"`
	Logs      TelemetrySampling `json:"logs"`
	Crashes   TelemetrySampling `json:"crashes"`
}

// LogPolicy narrows which log levels are kept
type LogPolicy struct {
	PrioritizeCrashes bool `json:"prioritize_crashes"`
	DropDebug         bool `json:"drop_debug"`
}

// RetentionPolicy holds retention days per data type
type RetentionPolicy struct {
	APITraces int `json:"api_traces"`
	Logs      int `json:"logs"`
	Sessions  int `json:"sessions"`
	Crashes   int `json:"crashes"`
}

// FreezePolicy marks mutable features as read-only
type FreezePolicy struct {
	BusinessConfig bool `json:"business_config"`
	Localization   bool `json:"localization"`
}

// EffectivePolicy is the operational restriction set derived from an enforcement state
type EffectivePolicy struct {
	Sampling  SamplingPolicy  `json:"sampling"`
	Logs      LogPolicy       `json:"logs"`
	Retention RetentionPolicy `json:"retention"`
	Freezes   FreezePolicy    `json:"freezes"`
}

// PolicyConfig holds the tunable numbers behind Compile
type PolicyConfig struct {
	RetentionDays        int
	MinRetentionDays     int
	GraceRetentionCut    int
	GraceSamplingRate    float64
	DegradedSamplingRate float64
}

// DefaultPolicyConfig returns the production defaults
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		RetentionDays:        30,
		MinRetentionDays:     7,
		GraceRetentionCut:    7,
		GraceSamplingRate:    0.10,
		DegradedSamplingRate: 0.01,
	}
}

// Validate checks that rates are fractions and retention is positive
func (c PolicyConfig) Validate() error {
	if c.MinRetentionDays <= 0 || c.RetentionDays < c.MinRetentionDays {
		return fmt.Errorf("policy retention days must satisfy 0 < min (%d) <= full (%d)", c.MinRetentionDays, c.RetentionDays)
	}
	if c.GraceRetentionCut < 0 {
		return fmt.Errorf("policy grace retention cut cannot be negative")
	}
	for name, rate := range map[string]float64{
		"grace_sampling_rate":    c.GraceSamplingRate,
		"degraded_sampling_rate": c.DegradedSamplingRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("policy %s must be between 0 and 1, got %f", name, rate)
		}
	}
	return nil
}

// Compile maps an enforcement state to its policy. It is deterministic and
// has no side effects. WARN compiles to the same policy as ACTIVE.
func Compile(state State, cause Cause, cfg PolicyConfig) EffectivePolicy {
	switch state {
	case StateGrace:
		return gracePolicy(cfg)
	case StateDegraded:
		return degradedPolicy(cause, cfg)
	default:
		return UnrestrictedPolicy(cfg)
	}
}

// UnrestrictedPolicy is the ACTIVE policy, also served when enforcement fails open
func UnrestrictedPolicy(cfg PolicyConfig) EffectivePolicy {
	full := TelemetrySampling{Rate: 1, Enabled: true}
	return EffectivePolicy{
		Sampling: SamplingPolicy{APITraces: full, Sessions: full, Logs: full, Crashes: full},
		Retention: RetentionPolicy{
			APITraces: cfg.RetentionDays,
			Logs:      cfg.RetentionDays,
			Sessions:  cfg.RetentionDays,
			Crashes:   cfg.RetentionDays,
		},
	}
}

func gracePolicy(cfg PolicyConfig) EffectivePolicy {
	reduced := TelemetrySampling{Rate: cfg.GraceSamplingRate, Enabled: true}
	shortened := max(cfg.RetentionDays-cfg.GraceRetentionCut, cfg.MinRetentionDays)
	return EffectivePolicy{
		Sampling: SamplingPolicy{
			APITraces: reduced,
			Sessions:  reduced,
			Logs:      TelemetrySampling{Rate: 1, Enabled: true},
			Crashes:   TelemetrySampling{Rate: 1, Enabled: true},
		},
		Logs: LogPolicy{PrioritizeCrashes: true, DropDebug: true},
		Retention: RetentionPolicy{
			APITraces: shortened,
			Logs:      cfg.MinRetentionDays,
			Sessions:  shortened,
			Crashes:   cfg.RetentionDays,
		},
	}
}

func degradedPolicy(cause Cause, cfg PolicyConfig) EffectivePolicy {
	minimal := TelemetrySampling{Rate: cfg.DegradedSamplingRate, Enabled: true}
	crashes := TelemetrySampling{Rate: 1, Enabled: true}
	if cause == CauseAdminDisabled {
		minimal = TelemetrySampling{Rate: 0, Enabled: false}
		crashes = minimal
	}
	return EffectivePolicy{
		Sampling: SamplingPolicy{
			APITraces: minimal,
			Sessions:  minimal,
			Logs:      minimal,
			Crashes:   crashes,
		},
		Logs: LogPolicy{PrioritizeCrashes: true, DropDebug: true},
		Retention: RetentionPolicy{
			APITraces: cfg.MinRetentionDays,
			Logs:      cfg.MinRetentionDays,
			Sessions:  cfg.MinRetentionDays,
			Crashes:   cfg.MinRetentionDays,
		},
		Freezes: FreezePolicy{BusinessConfig: true, Localization: true},
	}
}
