package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/utils"
)

// ErrAddressInUse means another process already listens on the port
var ErrAddressInUse = errors.New("address already in use")

const (
	loopback     = "127.0.0.1"
	dialTimeout  = 5 * time.Second
	readDeadline = 5 * time.Second
)

// Handler processes one decoded message
type Handler func(ctx context.Context, msg Message)

// Address returns the loopback address for port
func Address(port int) string {
	return net.JoinHostPort(loopback, strconv.Itoa(port))
}

// Send delivers msg to the process listening on port and closes the
// connection without waiting for an answer
func Send(ctx context.Context, port int, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", Address(port))
	if err != nil {
		return fmt.Errorf("failed to connect to port %d: %w", port, err)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Command, err)
	}
	return nil
}

// Notifier delivers a message to another process
type Notifier func(ctx context.Context, msg Message) error

// NotifyPort returns a Notifier that sends to whoever listens on port
func NotifyPort(port int) Notifier {
	return func(ctx context.Context, msg Message) error {
		return Send(ctx, port, msg)
	}
}

// Server accepts one connection at a time and reads a single message from it
type Server struct {
	listener       net.Listener
	logger         logging.Logger
	handler        Handler
	onStateChanged func(ctx context.Context) error
}

// Listen binds the loopback port. Port 0 picks a free port.
func Listen(port int, logger logging.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", Address(port))
	if err != nil {
		if isAddrInUse(err) {
			return nil, ErrAddressInUse
		}
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Server{listener: ln, logger: logger}, nil
}

// Port is the bound port
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Handle sets the per-service handler. Every command reaches it, including
// StateChanged after the reload hook has run.
func (s *Server) Handle(h Handler) {
	s.handler = h
}

// OnStateChanged sets the reload hook run for every StateChanged message
func (s *Server) OnStateChanged(fn func(ctx context.Context) error) {
	s.onStateChanged = fn
}

// Serve runs the accept loop until ctx is cancelled or the listener is closed
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("Accept failed", logging.F("error", err.Error()))
			continue
		}
		s.serveConn(ctx, conn)
	}
}

// Close stops the accept loop
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	buf := make([]byte, utils.MaxMessageBytes)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		s.logger.Debug("Empty or failed read", logging.F("remote", conn.RemoteAddr().String()))
		return
	}

	msg, err := Decode(buf[:n])
	if err != nil {
		s.logger.Warn("Dropping malformed message", logging.F("error", err.Error()))
		return
	}
	s.dispatch(ctx, msg)
}

func (s *Server) dispatch(ctx context.Context, msg Message) {
	s.logger.Debug("Received command",
		logging.F("command", string(msg.Command)),
		logging.F("event", string(msg.Event)),
	)

	if msg.Command == CommandStateChanged && s.onStateChanged != nil {
		if err := s.onStateChanged(ctx); err != nil {
			s.logger.Error("Failed to reload state", logging.F("error", err.Error()))
		}
	}

	if s.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Command handler panicked",
				logging.F("command", string(msg.Command)),
				logging.F("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.handler(ctx, msg)
}
