package controller

import (
	"context"
	"time"

	"cadenceflow/engine"
	"cadenceflow/models"
	"cadenceflow/notify"
	"cadenceflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	localStreamCadence = "streamCadenceID"
	streamPingInterval = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
	streamQueryTimeout = 5 * time.Second
)

type streamMessage struct {
	Type  string            `json:"type"`
	Event *notify.Event     `json:"event,omitempty"`
	Today models.Date       `json:"today"`
	Items []engine.ToDoItem `json:"items"`
}

// StreamUpgrade checks ownership before the connection is upgraded, since
// errors can no longer be returned as HTTP responses afterwards.
func (cc *CadenceController) StreamUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return utils.ErrorResponse(c, fiber.StatusUpgradeRequired, "upgrade_required", "WebSocket upgrade required")
	}
	cadenceID, err := cc.ownedCadenceParam(c)
	if err != nil {
		return cc.respondError(c, "stream", err)
	}
	c.Locals(localStreamCadence, cadenceID)
	return c.Next()
}

// StreamCadence pushes the cadence's to-do list on connect and again after
// every committed change to one of its enrollments.
func (cc *CadenceController) StreamCadence() fiber.Handler {
	return websocket.New(cc.streamCadence)
}

func (cc *CadenceController) streamCadence(conn *websocket.Conn) {
	defer conn.Close()

	cadenceID, _ := conn.Locals(localStreamCadence).(uint)
	log := cc.Logger.WithField("cadence_id", cadenceID)

	sub := cc.Hub.Subscribe(cadenceID)
	defer sub.Close()

	// The client never sends anything we act on; reading only detects close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := cc.pushToDo(conn, cadenceID, "snapshot", nil); err != nil {
		log.WithError(err).Debug("Stream closed before snapshot")
		return
	}

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := cc.pushToDo(conn, cadenceID, event.Type, &event); err != nil {
				log.WithError(err).WithField("event_id", event.ID).Debug("Stream write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (cc *CadenceController) pushToDo(conn *websocket.Conn, cadenceID uint, messageType string, event *notify.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), streamQueryTimeout)
	defer cancel()

	items, err := cc.Engine.ListToDo(ctx, cadenceID)
	if err != nil {
		cc.Logger.WithError(err).WithFields(logrus.Fields{
			"cadence_id": cadenceID,
		}).Warn("Failed to load to-do list for stream")
		items = nil
		messageType = "error"
	}

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(streamMessage{
		Type:  messageType,
		Event: event,
		Today: cc.Engine.Today(),
		Items: items,
	})
}
