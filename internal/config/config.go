package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid configuration")

// Sensor kinds.
const (
	SensorMotion = "motion"
	SensorRFID   = "rfid"
)

// Policy kinds.
const (
	PolicyBusinessHours = "business_hours"
	PolicyDebounce      = "debounce"
	PolicyAccess        = "access"
	PolicyToggle        = "toggle"
)

// Lock kinds.
const (
	LockNone  = "none"
	LockPulse = "pulse"
	LockDoor  = "door"
)

type Pins struct {
	Motion    string
	Buzzer    string
	Servo     string
	LEDGreen  string
	LEDRed    string
	Door      string
	SPIPort   string
	RFIDReset string
	RFIDIRQ   string
}

type MQTT struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type Archive struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	Prefix    string
}

type Config struct {
	HTTPAddr string
	GRPCAddr string
	DeviceID string

	LogLevel  string
	LogFormat string

	Hardware string // "sim" | "periph"
	Sensor   string
	Policy   string
	Lock     string
	Pins     Pins

	PollInterval     time.Duration
	TZOffsetHours    int
	BusinessStart    int
	BusinessEnd      int
	AlertInterval    time.Duration
	AlarmMaxSweeps   int
	RingSize         int
	DoorCloseTimeout time.Duration // 0 = wait until shutdown

	// Durable log
	Store          string // "csv" | "memory" | "sqlite" | "postgres"
	LogFile        string
	DBPath         string
	PostgresDSN    string
	FatalLogWrites bool

	// Identity registry, uid -> label.
	Registry map[string]string

	MQTT              MQTT
	Redis             Redis
	WebhookURL        string
	HeartbeatInterval time.Duration
	Archive           Archive

	ControlTokenHash string
}

// Location returns the fixed-offset zone used for record timestamps and the
// business-hours clock. No DST handling.
func (c Config) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.TZOffsetHours), c.TZOffsetHours*3600)
}

func FromEnv() (Config, error) {
	sensor := strings.ToLower(getenvDefault("PORTUNUS_SENSOR", SensorMotion))

	defaultPolicy := PolicyBusinessHours
	defaultPoll := 50
	if sensor == SensorRFID {
		defaultPolicy = PolicyAccess
		defaultPoll = 200
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "portunus-edge"
	}

	registry, err := loadRegistry(os.Getenv("PORTUNUS_REGISTRY_FILE"), os.Getenv("PORTUNUS_REGISTRY"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr: getenvDefault("PORTUNUS_HTTP_ADDR", ":8080"),
		GRPCAddr: strings.TrimSpace(os.Getenv("PORTUNUS_GRPC_ADDR")),
		DeviceID: getenvDefault("PORTUNUS_DEVICE_ID", hostname),

		LogLevel:  strings.ToLower(getenvDefault("PORTUNUS_LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getenvDefault("PORTUNUS_LOG_FORMAT", "json")),

		Hardware: strings.ToLower(getenvDefault("PORTUNUS_HW", "sim")),
		Sensor:   sensor,
		Policy:   strings.ToLower(getenvDefault("PORTUNUS_POLICY", defaultPolicy)),
		Lock:     strings.ToLower(getenvDefault("PORTUNUS_LOCK", LockNone)),
		Pins: Pins{
			Motion:    getenvDefault("PORTUNUS_PIN_MOTION", "GPIO36"),
			Buzzer:    getenvDefault("PORTUNUS_PIN_BUZZER", "GPIO12"),
			Servo:     getenvDefault("PORTUNUS_PIN_SERVO", "GPIO4"),
			LEDGreen:  getenvDefault("PORTUNUS_PIN_LED_GREEN", "GPIO25"),
			LEDRed:    getenvDefault("PORTUNUS_PIN_LED_RED", "GPIO13"),
			Door:      getenvDefault("PORTUNUS_PIN_DOOR", "GPIO16"),
			SPIPort:   strings.TrimSpace(os.Getenv("PORTUNUS_SPI_PORT")),
			RFIDReset: getenvDefault("PORTUNUS_PIN_RFID_RESET", "GPIO2"),
			RFIDIRQ:   getenvDefault("PORTUNUS_PIN_RFID_IRQ", "GPIO24"),
		},

		PollInterval:     time.Duration(getenvInt("PORTUNUS_POLL_INTERVAL_MS", defaultPoll)) * time.Millisecond,
		TZOffsetHours:    getenvSignedInt("PORTUNUS_TZ_OFFSET_HOURS", -8),
		BusinessStart:    getenvInt("PORTUNUS_BUSINESS_START_HOUR", 9),
		BusinessEnd:      getenvInt("PORTUNUS_BUSINESS_END_HOUR", 17),
		AlertInterval:    time.Duration(getenvInt("PORTUNUS_ALERT_INTERVAL_MS", 5000)) * time.Millisecond,
		AlarmMaxSweeps:   getenvInt("PORTUNUS_ALARM_MAX_SWEEPS", 10),
		RingSize:         getenvInt("PORTUNUS_RING_SIZE", 10),
		DoorCloseTimeout: time.Duration(getenvInt("PORTUNUS_DOOR_CLOSE_TIMEOUT_S", 0)) * time.Second,

		Store:          strings.ToLower(getenvDefault("PORTUNUS_STORE", "csv")),
		LogFile:        getenvDefault("PORTUNUS_LOG_FILE", "./data/log.csv"),
		DBPath:         getenvDefault("PORTUNUS_DB_PATH", "./data/portunus-edge.db"),
		PostgresDSN:    strings.TrimSpace(os.Getenv("PORTUNUS_PG_DSN")),
		FatalLogWrites: strings.EqualFold(os.Getenv("PORTUNUS_LOG_WRITE_POLICY"), "fatal"),

		Registry: registry,

		MQTT: MQTT{
			Broker:      strings.TrimSpace(os.Getenv("PORTUNUS_MQTT_BROKER")),
			ClientID:    getenvDefault("PORTUNUS_MQTT_CLIENT_ID", "portunus-edge-"+hostname),
			Username:    os.Getenv("PORTUNUS_MQTT_USERNAME"),
			Password:    os.Getenv("PORTUNUS_MQTT_PASSWORD"),
			TopicPrefix: strings.TrimSuffix(getenvDefault("PORTUNUS_MQTT_TOPIC_PREFIX", "portunus/edge"), "/"),
		},
		Redis: Redis{
			Addr:     strings.TrimSpace(os.Getenv("PORTUNUS_REDIS_ADDR")),
			Password: os.Getenv("PORTUNUS_REDIS_PASSWORD"),
			DB:       getenvInt("PORTUNUS_REDIS_DB", 0),
			Stream:   getenvDefault("PORTUNUS_REDIS_STREAM", "portunus:edge:events"),
		},
		WebhookURL:        strings.TrimSpace(os.Getenv("PORTUNUS_WEBHOOK_URL")),
		HeartbeatInterval: time.Duration(getenvInt("PORTUNUS_HEARTBEAT_INTERVAL_S", 60)) * time.Second,
		Archive: Archive{
			Bucket:    strings.TrimSpace(os.Getenv("PORTUNUS_ARCHIVE_S3_BUCKET")),
			Region:    os.Getenv("PORTUNUS_ARCHIVE_S3_REGION"),
			Endpoint:  os.Getenv("PORTUNUS_ARCHIVE_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("PORTUNUS_ARCHIVE_S3_PATH_STYLE"), "true"),
			Prefix:    getenvDefault("PORTUNUS_ARCHIVE_S3_PREFIX", "portunus-edge/"),
		},

		ControlTokenHash: strings.TrimSpace(os.Getenv("PORTUNUS_CONTROL_TOKEN_HASH")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the controller cannot run with.
func (c Config) Validate() error {
	switch c.Sensor {
	case SensorMotion:
		if c.Policy != PolicyBusinessHours && c.Policy != PolicyDebounce {
			return fmt.Errorf("%w: policy %q does not apply to motion sensor", ErrInvalid, c.Policy)
		}
	case SensorRFID:
		if c.Policy != PolicyAccess && c.Policy != PolicyToggle {
			return fmt.Errorf("%w: policy %q does not apply to rfid sensor", ErrInvalid, c.Policy)
		}
	default:
		return fmt.Errorf("%w: unknown sensor %q", ErrInvalid, c.Sensor)
	}

	switch c.Lock {
	case LockNone, LockPulse, LockDoor:
	default:
		return fmt.Errorf("%w: unknown lock %q", ErrInvalid, c.Lock)
	}

	switch c.Hardware {
	case "sim", "periph":
	default:
		return fmt.Errorf("%w: unknown hardware %q", ErrInvalid, c.Hardware)
	}

	switch c.Store {
	case "csv", "memory", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: PORTUNUS_PG_DSN is required for the postgres store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Store)
	}

	if c.BusinessStart < 0 || c.BusinessEnd > 24 || c.BusinessStart >= c.BusinessEnd {
		return fmt.Errorf("%w: business hours %d-%d", ErrInvalid, c.BusinessStart, c.BusinessEnd)
	}
	if c.TZOffsetHours < -12 || c.TZOffsetHours > 14 {
		return fmt.Errorf("%w: timezone offset %d", ErrInvalid, c.TZOffsetHours)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalid)
	}
	if c.RingSize <= 0 {
		return fmt.Errorf("%w: ring size must be positive", ErrInvalid)
	}
	return nil
}

// loadRegistry merges the JSON registry file (if any) with inline
// "UID:Label" pairs. Inline entries win.
func loadRegistry(path, inline string) (map[string]string, error) {
	out := make(map[string]string)

	if path = strings.TrimSpace(path); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read registry file: %w", err)
		}
		var m map[string]string
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%w: registry file %s: %v", ErrInvalid, path, err)
		}
		for uid, label := range m {
			if err := addRegistryEntry(out, uid, label); err != nil {
				return nil, err
			}
		}
	}

	for _, pair := range splitCSV(inline) {
		uid, label, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%w: registry entry %q (want UID:Label)", ErrInvalid, pair)
		}
		if err := addRegistryEntry(out, uid, label); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// addRegistryEntry stores one mapping. Labels end up as a bare column in
// the durable log, so separators and line breaks are refused.
func addRegistryEntry(out map[string]string, uid, label string) error {
	uid, label = NormalizeUID(uid), strings.TrimSpace(label)
	if uid == "" {
		return nil
	}
	if strings.ContainsAny(uid, ",\r\n") || strings.ContainsAny(label, ",\r\n") {
		return fmt.Errorf("%w: registry entry %q may not contain commas or line breaks", ErrInvalid, uid+":"+label)
	}
	out[uid] = label
	return nil
}

// NormalizeUID upper-cases a hex tag id and strips separators.
func NormalizeUID(uid string) string {
	uid = strings.TrimSpace(uid)
	uid = strings.TrimPrefix(strings.TrimPrefix(uid, "0x"), "0X")
	uid = strings.NewReplacer(":", "", "-", "", " ", "").Replace(uid)
	return strings.ToUpper(uid)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvSignedInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
