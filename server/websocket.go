package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// startWebSocket serves the same binary protocol over WebSocket for
// clients that cannot open a raw TCP connection. Each binary WebSocket
// message carries a slice of the byte stream; frame boundaries are not
// significant.
func (s *Server) startWebSocket(ctx context.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSession(ctx, &wsStream{ws: ws}, r.RemoteAddr)
		}()
	})

	srv := &http.Server{
		Addr:              s.cfg.WebSocketListen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.wsSrv = srv

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("websocket listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("websocket server failed", "error", err)
		}
	}()
}

// wsStream adapts a WebSocket connection to the io.ReadWriteCloser the
// session controller expects, concatenating incoming binary messages into
// a continuous byte stream.
type wsStream struct {
	ws *websocket.Conn
	r  io.Reader // current in-progress message reader
}

// Read implements io.Reader
func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			msgType, r, err := s.ws.NextReader()
			if err != nil {
				return 0, wsReadErr(err)
			}
			if msgType != websocket.BinaryMessage {
				// Ignore text/control payloads on the data stream.
				continue
			}
			s.r = r
		}
		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write implements io.Writer
func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer
func (s *wsStream) Close() error {
	return s.ws.Close()
}

// wsReadErr maps a clean WebSocket close onto io.EOF so the session sees
// the same graceful-disconnect signal as on raw TCP.
func wsReadErr(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}
