package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casemr/gadgetron/config"
	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/session"
	"github.com/casemr/gadgetron/stage"
	"github.com/casemr/gadgetron/stageregistry"
	"github.com/casemr/gadgetron/testutil"
	"github.com/casemr/gadgetron/wire"
)

func testServer(t *testing.T) (*Server, *wire.Registry) {
	t.Helper()

	codecs, err := wire.Default()
	require.NoError(t, err)

	stages := stage.NewRegistry()
	require.NoError(t, stageregistry.Register(stages))

	deps := session.Dependencies{
		Codecs: codecs,
		Stages: stages,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	chain := config.ChainConfig{Stages: []config.StageSpec{{Type: "passthrough"}}}
	return New(config.ServerConfig{Listen: "127.0.0.1:0"}, chain, deps), codecs
}

func TestServer_EchoOverTCP(t *testing.T) {
	srv, codecs := testServer(t)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(5 * time.Second) //nolint:errcheck // test cleanup

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck // test cleanup

	require.NoError(t, codecs.WriteFrame(conn, testutil.Acquisition(7, 0, 8, 2)))
	require.NoError(t, codecs.WriteClose(conn))

	m, tag, err := codecs.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.TagAcquisition, tag)
	h, err := message.First[*message.AcquisitionHeader](m)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), h.Line)

	_, tag, err = codecs.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.TagClose, tag)
}

func TestServer_ConcurrentSessions(t *testing.T) {
	srv, codecs := testServer(t)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(5 * time.Second) //nolint:errcheck // test cleanup

	const sessions = 4
	done := make(chan error, sessions)
	for s := 0; s < sessions; s++ {
		go func(line uint16) {
			conn, err := net.Dial("tcp", srv.Addr().String())
			if err != nil {
				done <- err
				return
			}
			defer conn.Close() //nolint:errcheck // test cleanup

			if err := codecs.WriteFrame(conn, testutil.Acquisition(line, 0, 4, 1)); err != nil {
				done <- err
				return
			}
			m, _, err := codecs.ReadFrame(conn)
			if err != nil {
				done <- err
				return
			}
			h, err := message.First[*message.AcquisitionHeader](m)
			if err != nil {
				done <- err
				return
			}
			if h.Line != line {
				done <- errors.New("echoed frame from a different session")
				return
			}
			done <- codecs.WriteClose(conn)
		}(uint16(s))
	}

	for s := 0; s < sessions; s++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("sessions did not complete")
		}
	}
}

func TestServer_Lifecycle(t *testing.T) {
	srv, _ := testServer(t)

	assert.ErrorIs(t, srv.Stop(time.Second), errors.ErrNotStarted)
	require.NoError(t, srv.Start(context.Background()))
	assert.ErrorIs(t, srv.Start(context.Background()), errors.ErrAlreadyStarted)
	require.NoError(t, srv.Stop(5*time.Second))
}

func TestServer_StopClosesActiveSessions(t *testing.T) {
	srv, _ := testServer(t)
	require.NoError(t, srv.Start(context.Background()))

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck // test cleanup

	require.NoError(t, srv.Stop(5*time.Second))

	// The session was cancelled; the connection dies shortly after.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func TestWSReadErr_MapsCleanClose(t *testing.T) {
	closeErr := &websocket.CloseError{Code: websocket.CloseNormalClosure}
	assert.Equal(t, io.EOF, wsReadErr(closeErr))

	goingAway := &websocket.CloseError{Code: websocket.CloseGoingAway}
	assert.Equal(t, io.EOF, wsReadErr(goingAway))

	abnormal := &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	assert.NotEqual(t, io.EOF, wsReadErr(abnormal))
}
