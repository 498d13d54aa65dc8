package bench

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/qwtsc/yarb-tree/lib/infra"
)

type WorkloadKind string

const (
	RandomWorkload     WorkloadKind = "random"
	SequentialWorkload WorkloadKind = "sequential"
	ReverseWorkload    WorkloadKind = "reverse"
)

func (kind WorkloadKind) String() string {
	return string(kind)
}

func ParseWorkloadKind(kind string) (WorkloadKind, error) {
	switch _kind := WorkloadKind(strings.ToLower(strings.TrimSpace(kind))); _kind {
	case RandomWorkload, SequentialWorkload, ReverseWorkload:
		return _kind, nil
	default:
	}
	return RandomWorkload, infra.NewErrorStack("unknown workload " + kind)
}

const envPrefix = "RBBENCH_"

// Config of a benchmark run. The zero value is not usable, starts
// from DefaultConfig or LoadConfigFromEnv.
type Config struct {
	Total          int
	Rounds         int
	Workload       WorkloadKind
	Containers     []string
	Parallel       bool
	PoolSize       int
	ReportDB       string
	Metrics        string
	MetricsAddr    string
	MetricsPeriod  time.Duration
	LogLevel       string
	LogEncoder     string
	Seed           uint64
	VerifyInterval int
}

// DefaultConfig inserts 0.1 million random keys into every container once.
func DefaultConfig() Config {
	return Config{
		Total:         100_000,
		Rounds:        1,
		Workload:      RandomWorkload,
		Containers:    []string{RBTreeContainer, BTreeContainer},
		PoolSize:      4,
		Metrics:       "none",
		MetricsAddr:   ":9464",
		MetricsPeriod: 5 * time.Second,
		LogLevel:      "INFO",
		LogEncoder:    "json",
	}
}

func (cfg *Config) Validate() error {
	var err error
	if cfg.Total <= 0 {
		err = multierr.Append(err, infra.NewErrorStack("total must be positive"))
	}
	if cfg.Rounds <= 0 {
		err = multierr.Append(err, infra.NewErrorStack("rounds must be positive"))
	}
	if cfg.PoolSize <= 0 {
		err = multierr.Append(err, infra.NewErrorStack("pool size must be positive"))
	}
	if _, _err := ParseWorkloadKind(cfg.Workload.String()); _err != nil {
		err = multierr.Append(err, _err)
	}
	if len(cfg.Containers) == 0 {
		err = multierr.Append(err, infra.NewErrorStack("no containers"))
	}
	for _, name := range cfg.Containers {
		if !lo.Contains(SupportedContainers(), name) {
			err = multierr.Append(err, infra.NewErrorStack("unknown container "+name))
		}
	}
	if dups := lo.FindDuplicates(cfg.Containers); len(dups) > 0 {
		err = multierr.Append(err, infra.NewErrorStack("duplicate containers "+strings.Join(dups, ",")))
	}
	return err
}

type Option func(cfg *Config) error

func WithTotal(total int) Option {
	return func(cfg *Config) error {
		if total <= 0 {
			return infra.NewErrorStack("total must be positive")
		}
		cfg.Total = total
		return nil
	}
}

func WithRounds(rounds int) Option {
	return func(cfg *Config) error {
		if rounds <= 0 {
			return infra.NewErrorStack("rounds must be positive")
		}
		cfg.Rounds = rounds
		return nil
	}
}

func WithWorkload(kind WorkloadKind) Option {
	return func(cfg *Config) error {
		_kind, err := ParseWorkloadKind(kind.String())
		if err != nil {
			return err
		}
		cfg.Workload = _kind
		return nil
	}
}

func WithContainers(names ...string) Option {
	return func(cfg *Config) error {
		cfg.Containers = splitList(strings.Join(names, ","))
		return nil
	}
}

func WithParallel(poolSize int) Option {
	return func(cfg *Config) error {
		if poolSize <= 0 {
			return infra.NewErrorStack("pool size must be positive")
		}
		cfg.Parallel = true
		cfg.PoolSize = poolSize
		return nil
	}
}

func WithSeed(seed uint64) Option {
	return func(cfg *Config) error {
		cfg.Seed = seed
		return nil
	}
}

// WithVerifyInterval runs the tree validators every n inserted keys,
// 0 disables the validation.
func WithVerifyInterval(n int) Option {
	return func(cfg *Config) error {
		if n < 0 {
			return infra.NewErrorStack("verify interval must not be negative")
		}
		cfg.VerifyInterval = n
		return nil
	}
}

func WithReportDB(path string) Option {
	return func(cfg *Config) error {
		cfg.ReportDB = strings.TrimSpace(path)
		return nil
	}
}

func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	var err error
	for _, o := range opts {
		if o == nil {
			continue
		}
		err = multierr.Append(err, o(&cfg))
	}
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadConfigFromEnv overrides the defaults by RBBENCH_* variables, i.e.
// RBBENCH_TOTAL and RBBENCH_CONTAINERS. The log level falls back to
// XLOG_LVL. A nil lookup reads the process environment.
func LoadConfigFromEnv(lookup func(key string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultConfig()
	env := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && len(v) > 0
	}

	var err error
	parseInt := func(key string, dst *int) {
		if v, ok := env(key); ok {
			i, _err := strconv.Atoi(v)
			if _err != nil {
				err = multierr.Append(err, infra.WrapErrorStackWithMessage(_err, envPrefix+key))
				return
			}
			*dst = i
		}
	}
	parseInt("TOTAL", &cfg.Total)
	parseInt("ROUNDS", &cfg.Rounds)
	parseInt("POOL_SIZE", &cfg.PoolSize)
	parseInt("VERIFY_INTERVAL", &cfg.VerifyInterval)

	if v, ok := env("PARALLEL"); ok {
		b, _err := strconv.ParseBool(v)
		if _err != nil {
			err = multierr.Append(err, infra.WrapErrorStackWithMessage(_err, envPrefix+"PARALLEL"))
		} else {
			cfg.Parallel = b
		}
	}
	if v, ok := env("SEED"); ok {
		seed, _err := strconv.ParseUint(v, 10, 64)
		if _err != nil {
			err = multierr.Append(err, infra.WrapErrorStackWithMessage(_err, envPrefix+"SEED"))
		} else {
			cfg.Seed = seed
		}
	}
	if v, ok := env("METRICS_PERIOD"); ok {
		period, _err := time.ParseDuration(v)
		if _err != nil {
			err = multierr.Append(err, infra.WrapErrorStackWithMessage(_err, envPrefix+"METRICS_PERIOD"))
		} else {
			cfg.MetricsPeriod = period
		}
	}
	if v, ok := env("WORKLOAD"); ok {
		kind, _err := ParseWorkloadKind(v)
		err = multierr.Append(err, _err)
		cfg.Workload = kind
	}
	if v, ok := env("CONTAINERS"); ok {
		cfg.Containers = splitList(v)
	}
	if v, ok := env("REPORT_DB"); ok {
		cfg.ReportDB = v
	}
	if v, ok := env("METRICS"); ok {
		cfg.Metrics = v
	}
	if v, ok := env("METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := env("LOG_ENCODER"); ok {
		cfg.LogEncoder = v
	}
	if v, ok := env("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	} else if v, ok = lookup("XLOG_LVL"); ok && len(strings.TrimSpace(v)) > 0 {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	return cfg, err
}

func splitList(list string) []string {
	return lo.Uniq(lo.FilterMap(strings.Split(list, ","), func(item string, _ int) (string, bool) {
		item = strings.ToLower(strings.TrimSpace(item))
		return item, len(item) > 0
	}))
}
