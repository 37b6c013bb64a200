package vrx

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

const (
	ValidationLayer       = "VK_LAYER_KHRONOS_validation"
	DebugReportExtension  = "VK_EXT_debug_report"
	DefaultEntryPoint     = "main"
	DefaultWorkgroupSize  = 64
	DefaultElements       = 1024
	DefaultDriverName     = "vulkan"
	DefaultAPIVersion     = "1.1"
	DefaultAppVersion     = "1.0.0"
	DefaultApplication    = "vrx"
	DefaultEngine         = "vrx"
	DefaultLogLevelString = "info"
)

// QueueFamilyPolicy decides which compute capable queue family a Device uses
// when several qualify.
type QueueFamilyPolicy int

const (
	// QueueFamilyLast takes the last family with the compute bit. On most
	// discrete GPUs that is a dedicated compute family.
	QueueFamilyLast QueueFamilyPolicy = iota
	QueueFamilyFirst
)

func (p QueueFamilyPolicy) String() string {
	switch p {
	case QueueFamilyLast:
		return "last"
	case QueueFamilyFirst:
		return "first"
	}
	return "QueueFamilyPolicy(" + strconv.Itoa(int(p)) + ")"
}

func (p QueueFamilyPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *QueueFamilyPolicy) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "last", "":
		*p = QueueFamilyLast
	case "first":
		*p = QueueFamilyFirst
	default:
		return errors.Newf("unknown queue family policy %q, want last or first", b)
	}
	return nil
}

// MemoryTypeMatch decides how a memory type index is tested against the
// MemoryTypeBits of a memory requirement.
type MemoryTypeMatch int

const (
	// MatchRequirementBits accepts type i when bit i of the requirement bits
	// is set.
	MatchRequirementBits MemoryTypeMatch = iota
	// MatchLegacyBitZero accepts type i when bit 0 of the requirement bits is
	// set, whatever i is. It only exists to reproduce results of older
	// programs which tested the wrong bit.
	MatchLegacyBitZero
)

func (m MemoryTypeMatch) String() string {
	switch m {
	case MatchRequirementBits:
		return "requirement-bits"
	case MatchLegacyBitZero:
		return "legacy-bit0"
	}
	return "MemoryTypeMatch(" + strconv.Itoa(int(m)) + ")"
}

func (m MemoryTypeMatch) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MemoryTypeMatch) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "requirement-bits", "":
		*m = MatchRequirementBits
	case "legacy-bit0":
		*m = MatchLegacyBitZero
	default:
		return errors.Newf("unknown memory type match %q, want requirement-bits or legacy-bit0", b)
	}
	return nil
}

// Duration is a time.Duration read from a TOML string such as "1.5s". The
// empty string and "0" mean wait forever.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return []byte("0"), nil
	}
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "0" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "duration %q", s)
	}
	if v < 0 {
		return errors.Newf("duration %q is negative", s)
	}
	d.Duration = v
	return nil
}

// Nanoseconds returns the timeout handed to the driver, driver.WaitForever
// for a zero duration.
func (d Duration) Nanoseconds() uint64 {
	if d.Duration <= 0 {
		return driver.WaitForever
	}
	return uint64(d.Duration.Nanoseconds())
}

type AppConfig struct {
	Name       string `toml:"name"`
	EngineName string `toml:"engine_name"`
	Version    string `toml:"version"`
	APIVersion string `toml:"api_version"`
}

// RunConfig holds the settings of the vrx run command.
type RunConfig struct {
	Elements      int    `toml:"elements"`
	WorkgroupSize int    `toml:"workgroup_size"`
	Shader        string `toml:"shader"`
	EntryPoint    string `toml:"entry_point"`
	Driver        string `toml:"driver"`
	// Add is pushed to the shader as a push constant, every element read
	// back is expected to be increased by it.
	Add uint32 `toml:"add"`
}

type Config struct {
	App             AppConfig         `toml:"app"`
	Validation      bool              `toml:"validation"`
	Layers          []string          `toml:"layers"`
	Extensions      []string          `toml:"extensions"`
	DeviceIndex     int               `toml:"device_index"`
	QueueFamily     QueueFamilyPolicy `toml:"queue_family"`
	MemoryTypeMatch MemoryTypeMatch   `toml:"memory_type_match"`
	WaitTimeout     Duration          `toml:"wait_timeout"`
	LogLevel        string            `toml:"log_level"`
	Run             RunConfig         `toml:"run"`

	// Logger receives the package's log output. When nil, Context builds one
	// writing text to stderr at LogLevel.
	Logger *slog.Logger `toml:"-"`
}

func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:       DefaultApplication,
			EngineName: DefaultEngine,
			Version:    DefaultAppVersion,
			APIVersion: DefaultAPIVersion,
		},
		QueueFamily:     QueueFamilyLast,
		MemoryTypeMatch: MatchRequirementBits,
		LogLevel:        DefaultLogLevelString,
		Run: RunConfig{
			Elements:      DefaultElements,
			WorkgroupSize: DefaultWorkgroupSize,
			EntryPoint:    DefaultEntryPoint,
			Driver:        DefaultDriverName,
		},
	}
}

// LoadConfig reads the TOML file at path over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}
	defer f.Close()
	cfg, err := ReadConfig(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func ReadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DeviceIndex < 0 {
		return errors.Newf("device_index %d is negative", c.DeviceIndex)
	}
	if _, err := ParseVersion(c.App.Version); err != nil {
		return errors.Wrap(err, "app.version")
	}
	if _, err := ParseVersion(c.App.APIVersion); err != nil {
		return errors.Wrap(err, "app.api_version")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Run.Elements <= 0 {
		return errors.Wrapf(ErrInvalidCount, "run.elements %d", c.Run.Elements)
	}
	if c.Run.WorkgroupSize <= 0 {
		return errors.Wrapf(ErrInvalidCount, "run.workgroup_size %d", c.Run.WorkgroupSize)
	}
	switch c.Run.Driver {
	case "vulkan", "soft":
	default:
		return errors.Newf("run.driver %q, want vulkan or soft", c.Run.Driver)
	}
	return nil
}

// EnabledLayers returns the configured layers plus the validation layer when
// validation is on.
func (c Config) EnabledLayers() []string {
	layers := append([]string(nil), c.Layers...)
	if c.Validation && !contains(layers, ValidationLayer) {
		layers = append(layers, ValidationLayer)
	}
	return layers
}

// EnabledExtensions returns the configured extensions plus the debug report
// extension when validation is on.
func (c Config) EnabledExtensions() []string {
	exts := append([]string(nil), c.Extensions...)
	if c.Validation && !contains(exts, DebugReportExtension) {
		exts = append(exts, DebugReportExtension)
	}
	return exts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ParseVersion reads "major[.minor[.patch]]".
func ParseVersion(s string) (driver.Version, error) {
	var v driver.Version
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return v, errors.Newf("malformed version %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return v, errors.Newf("malformed version %q", s)
		}
		nums[i] = n
	}
	return driver.Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, errors.Wrapf(err, "log_level %q", s)
	}
	return l, nil
}

// NewLogger returns a text logger writing to w at the configured level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return c.NewLogger(os.Stderr)
}
