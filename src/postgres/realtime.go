package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultChangeChannel is the NOTIFY channel the row change triggers publish on.
// Payloads are json objects shaped like model.ChangeEvent.
const DefaultChangeChannel = "francpay_changes"

// ListenChanges blocks delivering row change events until ctx is done or the
// connection fails. Undecodable payloads are logged and skipped.
func ListenChanges(ctx context.Context, channel string, logger *zap.Logger, handler func(model.ChangeEvent)) error {
	conn, err := GetConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return errors.Wrapf(err, "failed to listen on %s", channel)
	}
	logger.Info("listening for row changes", zap.String("channel", channel))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "failed waiting for notification on %s", channel)
		}
		event := model.ChangeEvent{}
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			logger.Warn("dropping undecodable change event", zap.String("payload", notification.Payload), zap.Error(err))
			continue
		}
		handler(event)
	}
}

// StreamChanges keeps ListenChanges alive, reconnecting after retryDelay
func StreamChanges(ctx context.Context, channel string, retryDelay time.Duration, logger *zap.Logger, handler func(model.ChangeEvent)) {
	logger = logger.With(zap.String("component", "realtime"))
	for {
		if err := ListenChanges(ctx, channel, logger, handler); err != nil {
			logger.Error("change stream interrupted", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("stopping change stream, context cancelled")
			return
		case <-time.After(retryDelay):
		}
	}
}
