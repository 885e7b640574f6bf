package vwire

/*------------------------------------------------------------------
 *
 * Purpose:   	Read the station profile from a file.
 *
 * Description:	Everything the command line tools need to bring up a
 *		station lives in one YAML profile: the bit rate, which
 *		GPIO lines the radio modules hang off, how to key the
 *		transmitter, and the optional KISS, receive log and
 *		MQTT surfaces.
 *
 *		Command line flags override nothing here.  A flag that
 *		duplicates a profile setting is a bug; the tools take a
 *		profile path and only the handful of switches that make
 *		no sense in a file.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Modem   ModemConfig   `yaml:"modem"`
	Radio   RadioConfig   `yaml:"radio"`
	PTT     PTTConfig     `yaml:"ptt"`
	KISS    KISSConfig    `yaml:"kiss"`
	RxLog   RxLogConfig   `yaml:"rxlog"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RadioConfig names the pins the radio modules are wired to.  A
// station missing one side is simply a one way station.
type RadioConfig struct {
	TX PinConfig `yaml:"tx"`
	RX PinConfig `yaml:"rx"`
}

type PinConfig struct {
	Chip string `yaml:"gpiochip"` // Like "gpiochip0".
	Line int    `yaml:"line"`
}

// Defined reports whether the profile names this pin at all.
func (p PinConfig) Defined() bool {
	return p.Chip != ""
}

// PTTConfig selects how the transmitter is keyed.
type PTTConfig struct {
	Method string `yaml:"method"` // none, gpio, rts or dtr.
	Chip   string `yaml:"gpiochip"`
	Line   int    `yaml:"line"`
	Device string `yaml:"device"` // Serial port for rts and dtr.
	Invert bool   `yaml:"invert"`
}

// Open turns the profile section into a keying line.  Returns nil,
// nil for method none; transmitting without PTT is normal for the
// little modules whose data pin is the carrier switch.
func (pc PTTConfig) Open() (*PTT, error) {
	switch pc.Method {
	case "", "none":
		return nil, nil
	case "gpio":
		return PTTByGPIO(pc.Chip, pc.Line, pc.Invert)
	case "rts":
		return PTTBySerial(pc.Device, PTT_LINE_RTS, pc.Invert)
	case "dtr":
		return PTTBySerial(pc.Device, PTT_LINE_DTR, pc.Invert)
	default:
		return nil, fmt.Errorf("unknown ptt method %q", pc.Method)
	}
}

type KISSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Symlink string `yaml:"symlink"`
	Device  string `yaml:"device"` // Real serial port instead of a pty.
	Baud    int    `yaml:"baud"`
	Debug   int    `yaml:"debug"`
}

type RxLogConfig struct {
	Path  string `yaml:"path"`
	Daily bool   `yaml:"daily"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"` // Empty means generate one.
	QoS         int    `yaml:"qos"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// DefaultConfig is a working profile for a bench loopback: sensible
// rate, no hardware named, everything optional disabled.
func DefaultConfig() *Config {
	return &Config{
		Modem: ModemConfig{
			BitRate: 2000,
		},
		PTT: PTTConfig{
			Method: "none",
		},
		KISS: KISSConfig{
			Symlink: TMP_KISSTNC_SYMLINK,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "vwire",
			QoS:         1,
		},
		Metrics: MetricsConfig{
			Listen: ":2112",
		},
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        LoadConfig
 *
 * Purpose:     Read and check a station profile.
 *
 * Inputs:	filename	- Path to the YAML profile.
 *
 * Returns:	The profile merged over the defaults, or an error if it
 *		cannot be read, parsed, or makes no sense.
 *
 *--------------------------------------------------------------------*/

func LoadConfig(filename string) (*Config, error) {
	var data, err = os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config = *DefaultConfig()
	if unmarshalErr := yaml.Unmarshal(data, &config); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	if validateErr := config.Validate(); validateErr != nil {
		return nil, validateErr
	}

	return &config, nil
}

// Validate rejects profiles that could not possibly run before any
// hardware is touched.
func (c *Config) Validate() error {
	var clock = c.Modem.ClockHz
	if clock == 0 {
		clock = DEFAULT_CLOCK_HZ
	}
	var max_ticks = c.Modem.MaxTicks
	if max_ticks == 0 {
		max_ticks = TIMER_MAX_TICKS_16BIT
	}
	if _, err := TimerSetup(clock, c.Modem.BitRate, max_ticks); err != nil {
		return fmt.Errorf("modem.bit_rate: %w", err)
	}

	switch c.PTT.Method {
	case "", "none":
	case "gpio":
		if c.PTT.Chip == "" {
			return fmt.Errorf("ptt.method gpio needs ptt.gpiochip")
		}
	case "rts", "dtr":
		if c.PTT.Device == "" {
			return fmt.Errorf("ptt.method %s needs ptt.device", c.PTT.Method)
		}
	default:
		return fmt.Errorf("unknown ptt.method %q", c.PTT.Method)
	}

	if c.KISS.Enabled && c.KISS.Device == "" && c.KISS.Symlink == "" {
		return fmt.Errorf("kiss needs either a device or a symlink path")
	}

	return nil
}
