package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scorecast/ml"
	"scorecast/monitoring"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxMessage   = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handlePredictStream answers each text message, a JSON record, with either
// the scores or an error object, in order.
func (a *API) handlePredictStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		return
	}
	defer conn.Close()

	connID := GetRequestID(r.Context())
	if connID == "" {
		connID = uuid.NewString()
	}
	a.logger.Info("prediction stream opened", zap.String("request_id", connID))
	a.metrics.IncrCounter(monitoring.StreamConnections)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go keepAlive(ctx, conn)

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Warn("prediction stream error", zap.String("request_id", connID), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var reply interface{}
		if msgType != websocket.TextMessage {
			reply = errorBody{Error: "expected a text message", Kind: ml.InvalidInput.String()}
		} else if scores, err := a.predict(ctx, connID, raw); err != nil {
			reply = a.streamError(connID, err)
		} else {
			reply = scores
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			a.logger.Warn("prediction stream write failed", zap.String("request_id", connID), zap.Error(err))
			return
		}
	}
}

func (a *API) streamError(connID string, err error) errorBody {
	kind := ml.PredictKind(err)
	if statusForKind(kind) == http.StatusInternalServerError {
		a.logger.Error("prediction failed", zap.String("request_id", connID), zap.Error(errors.Unwrap(err)))
		return errorBody{Error: "internal error while computing prediction", Kind: ml.Unexpected.String()}
	}
	return errorBody{Error: err.Error(), Kind: kind.String()}
}

// keepAlive pings until ctx ends. WriteControl may run alongside WriteJSON.
func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
