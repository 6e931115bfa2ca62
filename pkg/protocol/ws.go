package protocol

import (
	"errors"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// WebSocket serializes writes on a gorilla connection. Reads are left to
// a single reader goroutine.
type WebSocket struct {
	mu      sync.Mutex
	conn    *ws.Conn
	url     string
	reconn  uint
	timeout time.Duration
}

// NewWebSocket dials url. reconn is the pause in seconds between
// reconnection attempts; timeout bounds each write.
func NewWebSocket(url string, reconn uint, timeout time.Duration) (*WebSocket, error) {
	log.Debug("init websocket protocol", "url", url)

	web := &WebSocket{
		url:     url,
		reconn:  reconn,
		timeout: timeout,
	}

	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Error("Failed to dial url", "err", err)
		return nil, err
	}
	web.conn = conn

	return web, nil
}

// Wrap adopts an accepted server-side connection.
func Wrap(conn *ws.Conn, timeout time.Duration) *WebSocket {
	return &WebSocket{conn: conn, timeout: timeout}
}

func (web *WebSocket) Write(payload []byte) error {
	return web.write(ws.TextMessage, payload)
}

func (web *WebSocket) WriteMessage(m Message) error {
	b, err := m.Bytes()
	if err != nil {
		return err
	}
	return web.Write(b)
}

// Send encodes v as a typ frame and writes it.
func (web *WebSocket) Send(typ string, v any) error {
	m, err := NewMessage(typ, v)
	if err != nil {
		return err
	}
	return web.WriteMessage(m)
}

func (web *WebSocket) WriteBinary(payload []byte) error {
	return web.write(ws.BinaryMessage, payload)
}

func (web *WebSocket) write(kind int, payload []byte) error {
	web.mu.Lock()
	defer web.mu.Unlock()

	log.Debug("Write ws", "kind", kind, "len", len(payload))
	if web.timeout > 0 {
		_ = web.conn.SetWriteDeadline(time.Now().Add(web.timeout))
	}
	return web.conn.WriteMessage(kind, payload)
}

type WsIncomeKind uint

const (
	CONN_CLOSE WsIncomeKind = iota
	READ_FAILURE
	READ_TEXT
	READ_BINARY
)

type Income struct {
	Kind WsIncomeKind
	Msg  []byte
	Err  error
}

func (web *WebSocket) Read() Income {
	kind, msg, err := web.conn.ReadMessage()
	if err != nil {
		if WsIsClosed(err) || errors.Is(err, ws.ErrCloseSent) {
			return Income{Kind: CONN_CLOSE, Err: err}
		}
		return Income{Kind: READ_FAILURE, Err: err}
	}

	if kind == ws.BinaryMessage {
		log.Debug("Read ws binary", "len", len(msg))
		return Income{Kind: READ_BINARY, Msg: msg}
	}
	log.Debug("Read ws", "msg", string(msg))
	return Income{Kind: READ_TEXT, Msg: msg}
}

// TryReconn redials until it succeeds. Only valid for dialed sockets.
func (web *WebSocket) TryReconn() {
	for {
		conn, _, err := ws.DefaultDialer.Dial(web.url, nil)
		if err == nil {
			web.mu.Lock()
			web.conn = conn
			web.mu.Unlock()
			break
		}

		time.Sleep(time.Second * time.Duration(web.reconn))
	}
}

func (web *WebSocket) Close() error {
	web.mu.Lock()
	defer web.mu.Unlock()

	_ = web.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return web.conn.Close()
}

func WsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
