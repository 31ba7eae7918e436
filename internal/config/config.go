// Package config loads the settings shared by plcsim-starter and plcsim-ctl.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/srediag/plcsim-starter/adapter"
	"github.com/srediag/plcsim-starter/api"
	"github.com/srediag/plcsim-starter/internal/logging"
	"github.com/srediag/plcsim-starter/pkg/eventlog"
	"github.com/srediag/plcsim-starter/pkg/session"
	"github.com/srediag/plcsim-starter/pkg/signal"
)

// ProjectFile is looked up in the signal directory when no project is set.
const ProjectFile = "project.yaml"

// Config is the complete configuration of both binaries.
type Config struct {
	SignalDir    string   `yaml:"signal_dir"`
	SignalFile   string   `yaml:"signal_file"`
	LogFile      string   `yaml:"log_file"`
	AllowedTypes []string `yaml:"allowed_types"`

	HostPollInterval time.Duration `yaml:"host_poll_interval"`
	PeerPollInterval time.Duration `yaml:"peer_poll_interval"`
	SelfName         string        `yaml:"self_name"`
	EngineName       string        `yaml:"engine_name"`

	EngineRoot       string        `yaml:"engine_root"`
	EngineExecutable string        `yaml:"engine_executable"`
	PowerTimeout     time.Duration `yaml:"power_timeout"`
	StopSettle       time.Duration `yaml:"stop_settle"`
	EngineExitWait   time.Duration `yaml:"engine_exit_wait"`
	StorageRoot      string        `yaml:"storage_root"`
	MinStorageFree   uint64        `yaml:"min_storage_free"`

	Target api.DownloadTarget `yaml:"download_target"`

	AdminAddr string `yaml:"admin_addr"`
	LogLevel  int    `yaml:"log_level"`
	Journal   bool   `yaml:"journal"`
	Project   string `yaml:"project"`
}

// DefaultConfig returns the settings used without a config file.
func DefaultConfig() Config {
	return Config{
		SignalDir:        defaultSignalDir(),
		SignalFile:       signal.FileName,
		LogFile:          eventlog.FileName,
		AllowedTypes:     append([]string(nil), session.DefaultAllowedTypes...),
		HostPollInterval: time.Second,
		PeerPollInterval: 5 * time.Second,
		SelfName:         "plcsim-starter",
		EngineName:       strings.TrimSuffix(adapter.UserInterfaceExe, ".exe"),
		PowerTimeout:     60 * time.Second,
		StopSettle:       2 * time.Second,
		EngineExitWait:   5 * time.Second,
		StorageRoot:      filepath.Join(os.TempDir(), "plcsim-starter", "instances"),
		Target:           api.DefaultDownloadTarget(),
		LogLevel:         logging.FromEnv,
	}
}

func defaultSignalDir() string {
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			return filepath.Join(pd, "SREDiag", "Automation", "PLCSIMAdv")
		}
	}
	return filepath.Join(os.TempDir(), "plcsim-starter")
}

// VerifyConfig reports the first setting the binaries cannot run with.
func VerifyConfig(cfg Config) error {
	switch {
	case cfg.SignalDir == "":
		return errors.New("config: signal_dir is empty")
	case cfg.SignalFile == "" || strings.ContainsAny(cfg.SignalFile, `/\`):
		return fmt.Errorf("config: signal_file %q must be a plain file name", cfg.SignalFile)
	case cfg.LogFile == "" || strings.ContainsAny(cfg.LogFile, `/\`):
		return fmt.Errorf("config: log_file %q must be a plain file name", cfg.LogFile)
	case cfg.HostPollInterval <= 0 || cfg.PeerPollInterval <= 0:
		return fmt.Errorf("config: poll intervals must be positive (host %v, peer %v)", cfg.HostPollInterval, cfg.PeerPollInterval)
	case cfg.SelfName == "" || cfg.EngineName == "":
		return errors.New("config: self_name and engine_name are required")
	case cfg.PowerTimeout <= 0:
		return fmt.Errorf("config: power_timeout %v must be positive", cfg.PowerTimeout)
	case cfg.LogLevel < logging.FromEnv || cfg.LogLevel > logging.LevelNoPrint:
		return fmt.Errorf("config: log_level %d out of range", cfg.LogLevel)
	}
	if cfg.AdminAddr != "" {
		if err := verifyLoopback(cfg.AdminAddr); err != nil {
			return err
		}
	}
	return session.VerifyConfig(cfg.Session())
}

func verifyLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("config: admin_addr: %w", err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("config: admin_addr %q is not a loopback address", addr)
	}
	return nil
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Session returns the state machine settings.
func (c Config) Session() session.Config {
	sc := session.DefaultConfig()
	sc.AllowedTypes = c.AllowedTypes
	sc.Target = c.Target
	sc.StopSettle = c.StopSettle
	sc.EngineExitWait = c.EngineExitWait
	return sc
}

// Engine returns the engine façade settings.
func (c Config) Engine() adapter.EngineConfig {
	return adapter.EngineConfig{
		PowerTimeout:   c.PowerTimeout,
		StorageRoot:    c.StorageRoot,
		MinStorageFree: c.MinStorageFree,
	}
}

// ProjectPath returns the engineering project to open.
func (c Config) ProjectPath() string {
	if c.Project != "" {
		return c.Project
	}
	return filepath.Join(c.SignalDir, ProjectFile)
}

// Logging returns the logger options.
func (c Config) Logging() logging.Options {
	return logging.Options{Level: c.LogLevel, Journal: c.Journal}
}

// Flags are the command line settings that override the config file.
type Flags struct {
	ConfigPath string
	LogLevel   int
	AdminAddr  string
	Project    string
	SignalDir  string

	fs *pflag.FlagSet
}

// BindFlags registers the shared flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "path of the YAML config file")
	fs.IntVar(&f.LogLevel, "log-level", logging.FromEnv, "log level, 0 trace to 5 silent (default from "+logging.LevelEnv+")")
	fs.StringVar(&f.AdminAddr, "admin-addr", "", "loopback address of the health and metrics endpoint, off when empty")
	fs.StringVar(&f.Project, "project", "", "engineering project file")
	fs.StringVar(&f.SignalDir, "signal-dir", "", "directory of the signal file")
	return f
}

// Apply copies every flag the user set into cfg.
func (f *Flags) Apply(cfg *Config) {
	if f.fs.Changed("log-level") {
		cfg.LogLevel = f.LogLevel
	}
	if f.fs.Changed("admin-addr") {
		cfg.AdminAddr = f.AdminAddr
	}
	if f.fs.Changed("project") {
		cfg.Project = f.Project
	}
	if f.fs.Changed("signal-dir") {
		cfg.SignalDir = f.SignalDir
	}
}

// Resolve loads the config file named by the flags, applies the flags and
// verifies the result.
func (f *Flags) Resolve() (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return Config{}, err
	}
	f.Apply(&cfg)
	if err := VerifyConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
