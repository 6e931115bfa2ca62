package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const DefaultSocketPath = "/tmp/daebak.sock"

const (
	CmdListen = "listen"
	CmdClose  = "close"
	CmdStatus = "status"
)

type ControlMessage struct {
	Cmd string `json:"cmd"`
}

type ControlReply struct {
	OK    bool   `json:"ok"`
	State string `json:"state,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler answers one control message. It may block for the length of a
// dialogue turn.
type Handler func(context.Context, ControlMessage) ControlReply

type Server struct {
	path string
	ln   net.Listener
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// StartServer replaces any stale socket at path and serves connections in
// the background until Close.
func StartServer(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{path: path, ln: ln, ctx: ctx, cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("ipc accept failed", "err", err)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleConn(conn, handler)
			}()
		}
	}()

	return s, nil
}

func (s *Server) Path() string { return s.path }

func (s *Server) Close() error {
	s.cancel()
	err := s.ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Debug("ipc: bad request", "err", err)
		_ = json.NewEncoder(conn).Encode(ControlReply{Error: "bad request"})
		return
	}

	reply := handler(s.ctx, msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Debug("ipc: reply failed", "cmd", msg.Cmd, "err", err)
	}
}

// SendCommand delivers cmd and waits for the reply. A zero timeout waits
// as long as the daemon needs.
func SendCommand(path, cmd string, timeout time.Duration) (ControlReply, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		return ControlReply{}, err
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd}); err != nil {
		return ControlReply{}, fmt.Errorf("send: %w", err)
	}

	var reply ControlReply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return ControlReply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
