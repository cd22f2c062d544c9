package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/notifier"
)

var upgrader = websocket.Upgrader{
	// The display is a kiosk on the shop LAN and does not send an Origin we can pin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DisplayHandler attaches the shop display over a WebSocket
type DisplayHandler struct {
	notifier *notifier.Notifier
}

func NewDisplayHandler(n *notifier.Notifier) *DisplayHandler {
	return &DisplayHandler{notifier: n}
}

// ServeHTTP upgrades the request and holds the display slot until the
// connection drops. Text frames from the display are echoed back.
// @Summary Display channel
// @Description WebSocket the shop display connects to. Receives PAY_BACK and BUY events.
// @Tags display
// @Router /ws/display [get]
func (h *DisplayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("[DISPLAY] Failed to upgrade connection")
		return
	}
	defer conn.Close()

	display := h.notifier.Connect(conn)
	defer h.notifier.Disconnect(display)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("display", display.ID).Msg("[DISPLAY] Unexpected close")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := display.Echo(msg); err != nil {
			log.Warn().Err(err).Str("display", display.ID).Msg("[DISPLAY] Echo failed")
			return
		}
	}
}
