package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mastercactapus/lasergrbl/ledger"
	"github.com/mastercactapus/lasergrbl/machine"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type consoleError struct {
	Error string `json:"error"`
	Line  string `json:"line"`
}

// console is a terminal over a websocket: every text message is sent to the
// controller line by line, and every ledger change is written back as JSON.
func (a *api) console(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.log.Error("websocket upgrade", zap.Error(err), zap.String("remote_addr", req.RemoteAddr))
		return
	}
	log := a.log.With(zap.String("remote_addr", conn.RemoteAddr().String()))
	log.Info("console connected")

	send := make(chan []byte, sendBufferSize)
	done := make(chan struct{})
	queue := func(v interface{}) {
		data, err := json.Marshal(v)
		if err != nil {
			log.Error("marshal console message", zap.Error(err))
			return
		}
		select {
		case send <- data:
		case <-done:
		default:
			log.Warn("console client too slow, message dropped")
		}
	}

	cancel := a.c.ledger.Subscribe(func(ch ledger.Change) { queue(ch) })
	go consoleWrite(conn, send, done)

	a.consoleRead(conn, log, queue)
	cancel()
	close(done)
	log.Info("console disconnected")
}

func (a *api) consoleRead(conn *websocket.Conn, log *zap.Logger, queue func(interface{})) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("console read", zap.Error(err))
			}
			return
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			err := a.c.link.Send(context.Background(), line, machine.SendOptions{})
			if err != nil {
				queue(consoleError{Error: err.Error(), Line: line})
			}
		}
	}
}

func consoleWrite(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
