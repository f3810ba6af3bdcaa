package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Worker socket message types
const (
	// Worker -> Server messages
	MsgTypePing = "ping"

	// Server -> Worker messages
	MsgTypeRegistered = "registered"
	MsgTypePong       = "pong"
	MsgTypeError      = "error"
)

// registrationTimeout bounds the wait for the first message.
const registrationTimeout = 10 * time.Second

// WorkerRegistration is the first message a worker sends: its kind
// ("discoverer" or "ingester"), name and free-form info.
type WorkerRegistration struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Info string `json:"info"`
}

// WSMessage is any later message on the socket
type WSMessage struct {
	Type    string `json:"type"`
	ID      uint64 `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// WorkerHandlerImpl lists workers in the status for as long as their socket is open
type WorkerHandlerImpl struct {
	coordinator Coordinator
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

// NewWorkerHandler creates a new worker socket handler
func NewWorkerHandler(coordinator Coordinator, log *zap.Logger) WorkerHandler {
	return &WorkerHandlerImpl{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Workers are not browsers
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
		log: log.Named("workers"),
	}
}

// HandleWorkerSocket upgrades the connection and registers the worker
func (h *WorkerHandlerImpl) HandleWorkerSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(registrationTimeout))
	var reg WorkerRegistration
	if err := ws.ReadJSON(&reg); err != nil {
		h.log.Debug("worker did not register", zap.Error(err))
		h.send(ws, WSMessage{Type: MsgTypeError, Message: "expected registration message"})
		return nil
	}

	id, err := h.coordinator.Register(reg.Type, reg.Name, reg.Info)
	if err != nil {
		h.send(ws, WSMessage{Type: MsgTypeError, Message: err.Error()})
		return nil
	}
	defer h.coordinator.Unregister(id)

	_ = ws.SetReadDeadline(time.Time{})
	h.send(ws, WSMessage{Type: MsgTypeRegistered, ID: id})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Info("worker connection error", zap.String("name", reg.Name), zap.Error(err))
			}
			return nil
		}

		switch msg.Type {
		case MsgTypePing:
			h.send(ws, WSMessage{Type: MsgTypePong})
		default:
			h.send(ws, WSMessage{Type: MsgTypeError, Message: "Unknown message type: " + msg.Type})
		}
	}
}

func (h *WorkerHandlerImpl) send(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		h.log.Debug("failed to write to worker", zap.Error(err))
	}
}
