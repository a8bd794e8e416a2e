package session

import (
	"context"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stlalpha/xfer/internal/config"
	"github.com/stlalpha/xfer/internal/file"
	"github.com/stlalpha/xfer/internal/metrics"
	"github.com/stlalpha/xfer/internal/terminalio"
	"github.com/stlalpha/xfer/internal/transfer"
)

// readBufferSize bounds one input chunk.
const readBufferSize = 1024

// Conn is the transport a session runs on.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Handler runs sessions for accepted connections.
type Handler struct {
	cfg      config.Config
	engine   transfer.Engine
	registry *Registry
	lister   *file.Lister
}

// NewHandler creates a handler serving cfg.Directory. registry may be nil.
func NewHandler(cfg config.Config, engine transfer.Engine, registry *Registry) *Handler {
	return &Handler{
		cfg:      cfg,
		engine:   engine,
		registry: registry,
		lister:   file.NewLister(cfg.Secure),
	}
}

// Serve runs one session until the user exits, the peer disconnects, or ctx
// is cancelled. conn is closed on return.
func (h *Handler) Serve(ctx context.Context, conn Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	remote := conn.RemoteAddr().String()
	sess := NewSession(uuid.NewString(), remote, h.cfg.Directory)
	log := logrus.WithFields(logrus.Fields{"session": sess.ID, "remote": remote})

	log.Info("Client connected")
	metrics.SessionOpened()
	defer func() {
		conn.Close()
		if h.registry != nil {
			h.registry.Unregister(sess.ID)
		}
		metrics.SessionClosed()
		log.Info("Client disconnected")
	}()

	// A blocked Read only returns once the connection is closed.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	out := terminalio.NewWriter(conn, h.cfg.Encoding)
	sup := transfer.NewSupervisor(conn, h.engine, log)
	m := NewMachine(ctx, sess, out, h.lister, sup, log)
	if h.registry != nil {
		m.OnChange = h.registry.Update
	}

	m.Begin()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 && m.Feed(buf[:n]) {
			return
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.WithError(err).Debug("Read failed")
			}
			return
		}
	}
}
