// Package notifier holds the single display connection and pushes shop
// events to it.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrNoConsumerConnected is returned by Send when no display holds the slot.
var ErrNoConsumerConnected = errors.New("no display connected")

// Action names the kind of event pushed to the display.
type Action string

const (
	ActionPayBack Action = "PAY_BACK"
	ActionBuy     Action = "BUY"
)

// Event is the JSON frame pushed to the display.
type Event struct {
	Action      Action `json:"action"`
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name,omitempty"`
	Amount      int64  `json:"amount"`
	PortNumber  int    `json:"port_number,omitempty"`
}

// Socket is the part of *websocket.Conn the notifier writes through.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Display is one connected display. Writes are serialized because the
// websocket connection supports a single concurrent writer.
type Display struct {
	ID        string
	sock      Socket
	writeWait time.Duration
	mu        sync.Mutex
}

func (d *Display) write(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.writeWait > 0 {
		if err := d.sock.SetWriteDeadline(time.Now().Add(d.writeWait)); err != nil {
			return err
		}
	}
	return d.sock.WriteMessage(websocket.TextMessage, data)
}

// Echo answers a liveness probe with the received text prefixed by <ECHO>.
func (d *Display) Echo(msg []byte) error {
	reply := make([]byte, 0, len(msg)+7)
	reply = append(reply, "<ECHO> "...)
	reply = append(reply, msg...)
	return d.write(reply)
}

// Notifier owns the process-wide display slot. The last display to connect
// wins; events are never queued for a display that connects later.
type Notifier struct {
	mu        sync.RWMutex
	current   *Display
	writeWait time.Duration
}

func New(writeWait time.Duration) *Notifier {
	return &Notifier{writeWait: writeWait}
}

// Connect puts sock in the slot and closes the display it replaces.
func (n *Notifier) Connect(sock Socket) *Display {
	d := &Display{
		ID:        uuid.New().String(),
		sock:      sock,
		writeWait: n.writeWait,
	}

	n.mu.Lock()
	prev := n.current
	n.current = d
	n.mu.Unlock()

	if prev != nil {
		log.Info().Str("replaced", prev.ID).Str("display", d.ID).Msg("[DISPLAY] Replacing connected display")
		if err := prev.sock.Close(); err != nil {
			log.Debug().Err(err).Str("display", prev.ID).Msg("[DISPLAY] Close of replaced display failed")
		}
	} else {
		log.Info().Str("display", d.ID).Msg("[DISPLAY] Display connected")
	}
	return d
}

// Disconnect clears the slot if d still holds it.
func (n *Notifier) Disconnect(d *Display) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.current == d {
		n.current = nil
		log.Info().Str("display", d.ID).Msg("[DISPLAY] Display disconnected")
	}
}

// Connected reports whether a display currently holds the slot.
func (n *Notifier) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current != nil
}

// Send pushes ev to the connected display.
func (n *Notifier) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.RLock()
	d := n.current
	n.mu.RUnlock()

	if d == nil {
		return ErrNoConsumerConnected
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := d.write(data); err != nil {
		return fmt.Errorf("failed to write to display %s: %w", d.ID, err)
	}
	return nil
}
