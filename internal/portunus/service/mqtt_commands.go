package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/notify"
)

// Subscriber is the slice of an MQTT client the command listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler notify.MessageHandler) error
}

const commandTimeout = 10 * time.Second

// ListenCommands subscribes to <prefix>/command. Each payload is a command
// name such as "stop-alarm".
func ListenCommands(sub Subscriber, prefix string, svc *ControlService, logger *zap.Logger) error {
	topic := prefix + "/command"
	return sub.Subscribe(topic, 1, CommandHandler(svc, logger))
}

// CommandHandler returns the MQTT handler used by ListenCommands.
func CommandHandler(svc *ControlService, logger *zap.Logger) notify.MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(topic string, payload []byte) error {
		cmd, err := ParseCommand(string(payload))
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		logger.Debug("mqtt command", zap.String("topic", topic), zap.String("command", string(cmd)))
		return svc.Execute(ctx, cmd)
	}
}
