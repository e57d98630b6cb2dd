package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/config"
	"github.com/BrandonDHaskell/Portunus/edge/internal/db"
	"github.com/BrandonDHaskell/Portunus/edge/internal/hw"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/actuator"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/archive"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/notify"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/sensor"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store/csvfile"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store/postgres"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store/sqlite"
)

func openBoard(cfg config.Config) (*hw.Board, error) {
	if cfg.Hardware == "sim" {
		return &hw.NewSimBoard().Board, nil
	}
	return hw.OpenPeriph(hw.PeriphConfig{
		Motion:     cfg.Pins.Motion,
		Door:       cfg.Pins.Door,
		Buzzer:     cfg.Pins.Buzzer,
		Servo:      cfg.Pins.Servo,
		LEDGreen:   cfg.Pins.LEDGreen,
		LEDRed:     cfg.Pins.LEDRed,
		WithReader: cfg.Sensor == config.SensorRFID,
		SPIPort:    cfg.Pins.SPIPort,
		RFIDReset:  cfg.Pins.RFIDReset,
		RFIDIRQ:    cfg.Pins.RFIDIRQ,
	})
}

// openStore returns the configured durable log and a func releasing it.
func openStore(ctx context.Context, cfg config.Config, withState bool, logger *zap.Logger) (store.LogStore, func(), error) {
	loc := cfg.Location()
	switch cfg.Store {
	case "memory":
		return memory.NewLogStore(withState), func() {}, nil

	case "sqlite":
		conn, err := db.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		w := db.NewWorker(conn)
		logger.Info("sqlite store", zap.String("path", cfg.DBPath))
		return sqlite.NewLogStore(conn, w, cfg.DeviceID, withState, loc), func() {
			w.Close()
			_ = conn.Close()
		}, nil

	case "postgres":
		conn, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("postgres store")
		return postgres.NewLogStore(conn, cfg.DeviceID, withState, loc), func() { _ = conn.Close() }, nil

	default:
		logger.Info("csv store", zap.String("path", cfg.LogFile))
		return csvfile.New(cfg.LogFile, withState, loc), func() {}, nil
	}
}

func openArchive(ctx context.Context, cfg config.Config) (*archive.S3, error) {
	return archive.NewS3(ctx, archive.Config{
		Bucket:    cfg.Archive.Bucket,
		Region:    cfg.Archive.Region,
		Endpoint:  cfg.Archive.Endpoint,
		PathStyle: cfg.Archive.PathStyle,
		Prefix:    cfg.Archive.Prefix,
		DeviceID:  cfg.DeviceID,
	})
}

type notifiers struct {
	fanout *notify.Fanout
	mqtt   *notify.MQTTClient
	redis  *redis.Client
}

// publisher avoids handing out a typed nil.
func (n *notifiers) publisher() notify.Publisher {
	if n.mqtt == nil {
		return nil
	}
	return n.mqtt
}

func (n *notifiers) Close() {
	if n.mqtt != nil {
		n.mqtt.Disconnect()
	}
	if n.redis != nil {
		_ = n.redis.Close()
	}
}

// openNotifiers connects every configured sink. A broker that cannot be
// reached at startup is fatal.
func openNotifiers(ctx context.Context, cfg config.Config, logger *zap.Logger) (*notifiers, error) {
	out := &notifiers{}
	var sinks []notify.Notifier

	if cfg.MQTT.Broker != "" {
		c, err := notify.DialMQTT(notify.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger.Named("mqtt"))
		if err != nil {
			return nil, err
		}
		out.mqtt = c
		sinks = append(sinks, notify.NewMQTT(c, cfg.MQTT.TopicPrefix, cfg.DeviceID))
	}

	if cfg.Redis.Addr != "" {
		out.redis = notify.NewRedisClient(notify.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
		})
		rs := notify.NewRedisStream(out.redis, cfg.Redis.Stream, cfg.DeviceID)
		if err := rs.Ping(ctx); err != nil {
			out.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		sinks = append(sinks, rs)
	}

	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL, cfg.DeviceID))
	}

	out.fanout = notify.NewFanout(sinks...)
	logger.Info("notifiers configured", zap.Int("count", out.fanout.Len()))
	return out, nil
}

func buildSensor(cfg config.Config, board *hw.Board) (sensor.Sensor, error) {
	switch cfg.Sensor {
	case config.SensorRFID:
		if board.Reader == nil {
			return nil, fmt.Errorf("rfid sensor: no tag reader")
		}
		return sensor.NewTag(board.Reader, sensor.DefaultReadTimeout, nil), nil
	default:
		if board.Motion == nil {
			return nil, fmt.Errorf("motion sensor: no input pin")
		}
		return sensor.NewMotion(board.Motion, nil), nil
	}
}

// buildActuators returns the LEDs, the alarm buzzer (nil for access
// variants) and the per-decision actuator set.
func buildActuators(cfg config.Config, board *hw.Board) (*actuator.Indicator, *actuator.Buzzer, actuator.Actuator) {
	led := actuator.NewIndicator(board.LEDGreen, board.LEDRed)

	if cfg.Sensor == config.SensorMotion {
		if board.Buzzer == nil {
			return led, nil, nil
		}
		b := actuator.NewBuzzer(board.Buzzer)
		return led, b, actuator.Alerter{Buzzer: b}
	}

	var servo *actuator.Servo
	if board.Servo != nil {
		servo = actuator.NewServo(board.Servo)
	}
	mode := cfg.Lock
	if servo == nil {
		mode = actuator.LockNone
	}
	lock := actuator.NewLock(mode, servo, board.Door, led, cfg.DoorCloseTimeout)
	return led, nil, actuator.NewGate(lock, led)
}
