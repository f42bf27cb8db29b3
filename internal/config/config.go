// Package config loads strata's tunable engine knobs the way the teacher's
// internal/config layers YAML-backed settings over compiled-in defaults:
// an optional strata.yaml next to the database root, overridable by
// STRATA_* environment variables, falling back to defaults when absent.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Engine holds every tunable named or implied by spec.md.
type Engine struct {
	// C — stripe/page encoder
	StripeMaxRows  int `mapstructure:"stripe_max_rows"`
	PageTargetSize int `mapstructure:"page_target_size_bytes"`

	// D — secondary indexes
	BloomFalsePositiveRate float64 `mapstructure:"bloom_false_positive_rate"`
	BloomMaxBits           uint64  `mapstructure:"bloom_max_bits"`

	// E — timeline
	AppendRetryMaxElapsed string `mapstructure:"append_retry_max_elapsed"`

	// F — result cache
	CacheMaxEntries int `mapstructure:"cache_max_entries"`
	CacheMaxBytes   int `mapstructure:"cache_max_bytes"`

	// G/H — planner & executor
	ParallelScanChunkRows int `mapstructure:"parallel_scan_chunk_rows"`
	ParallelScanMaxDegree int `mapstructure:"parallel_scan_max_degree"`
	ParallelScanThreshold int `mapstructure:"parallel_scan_threshold_rows"`
	RowPollInterval       int `mapstructure:"row_poll_interval"`
	MemoryBudgetBytes     int `mapstructure:"memory_budget_bytes"`

	// I — language runtime
	MaxRecursionDepth int `mapstructure:"max_recursion_depth"`

	// J — hot-path compiler
	JITThreshold       int     `mapstructure:"jit_threshold"`
	JITBenchSamples    int     `mapstructure:"jit_bench_samples"`
	JITWarmupSamples   int     `mapstructure:"jit_warmup_samples"`
	JITRetireMargin    float64 `mapstructure:"jit_retire_margin"`
	JITThresholdFloor  int     `mapstructure:"jit_threshold_floor"`
	JITThresholdCeil   int     `mapstructure:"jit_threshold_ceiling"`
}

// Defaults returns the compiled-in configuration named throughout spec.md
// (10,000-row stripes, 64 KiB pages, threshold 10, recursion cap 1,000,
// row-poll boundary 4,096, adaptive range [1,1000]).
func Defaults() Engine {
	return Engine{
		StripeMaxRows:          10_000,
		PageTargetSize:         64 * 1024,
		BloomFalsePositiveRate: 0.01,
		BloomMaxBits:           1 << 24,
		AppendRetryMaxElapsed:  "2s",
		CacheMaxEntries:        1024,
		CacheMaxBytes:          64 * 1024 * 1024,
		ParallelScanChunkRows:  10_000,
		ParallelScanMaxDegree:  8,
		ParallelScanThreshold:  50_000,
		RowPollInterval:        4096,
		MemoryBudgetBytes:      128 * 1024 * 1024,
		MaxRecursionDepth:      1000,
		JITThreshold:           10,
		JITBenchSamples:        20,
		JITWarmupSamples:       3,
		JITRetireMargin:        1.2,
		JITThresholdFloor:      1,
		JITThresholdCeil:       1000,
	}
}

// Load reads strata.yaml from root (if present), applies STRATA_* env
// overrides, and fills any unset field from Defaults().
func Load(root string) (Engine, error) {
	def := Defaults()

	v := viper.New()
	v.SetConfigName("strata")
	v.SetConfigType("yaml")
	v.AddConfigPath(root)
	v.SetEnvPrefix("strata")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, def)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return def, err
		}
	}

	var out Engine
	if err := v.Unmarshal(&out); err != nil {
		return def, err
	}
	return out, nil
}

func setDefaults(v *viper.Viper, d Engine) {
	v.SetDefault("stripe_max_rows", d.StripeMaxRows)
	v.SetDefault("page_target_size_bytes", d.PageTargetSize)
	v.SetDefault("bloom_false_positive_rate", d.BloomFalsePositiveRate)
	v.SetDefault("bloom_max_bits", d.BloomMaxBits)
	v.SetDefault("append_retry_max_elapsed", d.AppendRetryMaxElapsed)
	v.SetDefault("cache_max_entries", d.CacheMaxEntries)
	v.SetDefault("cache_max_bytes", d.CacheMaxBytes)
	v.SetDefault("parallel_scan_chunk_rows", d.ParallelScanChunkRows)
	v.SetDefault("parallel_scan_max_degree", d.ParallelScanMaxDegree)
	v.SetDefault("parallel_scan_threshold_rows", d.ParallelScanThreshold)
	v.SetDefault("row_poll_interval", d.RowPollInterval)
	v.SetDefault("memory_budget_bytes", d.MemoryBudgetBytes)
	v.SetDefault("max_recursion_depth", d.MaxRecursionDepth)
	v.SetDefault("jit_threshold", d.JITThreshold)
	v.SetDefault("jit_bench_samples", d.JITBenchSamples)
	v.SetDefault("jit_warmup_samples", d.JITWarmupSamples)
	v.SetDefault("jit_retire_margin", d.JITRetireMargin)
	v.SetDefault("jit_threshold_floor", d.JITThresholdFloor)
	v.SetDefault("jit_threshold_ceiling", d.JITThresholdCeil)
}
