// Package tcpserver serves order requests as newline-delimited JSON over
// TCP: one request per line, one response envelope per line, in order.
package tcpserver

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"crossbook/adapter/message"
)

const DefaultMaxLine = 64 << 10

var ErrServerClosed = errors.New("tcpserver: server closed")

// Submitter is satisfied by *service.OrderService.
type Submitter interface {
	Submit(body []byte) message.Response
}

type Server struct {
	svc     Submitter
	log     *zap.SugaredLogger
	maxLine int

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn
	closed   bool
	wg       sync.WaitGroup
}

func New(svc Submitter, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		svc:     svc,
		log:     log.With("component", "tcp"),
		maxLine: DefaultMaxLine,
		conns:   make(map[string]net.Conn),
	}
}

func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return s.Serve(lis)
}

// Serve accepts connections until Shutdown, running one goroutine per
// connection.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = lis.Close()
		return ErrServerClosed
	}
	s.listener = lis
	s.mu.Unlock()

	s.log.Infow("listening", "addr", lis.Addr().String())
	for {
		conn, err := lis.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return errors.Wrap(err, "accept")
		}

		id := uuid.NewString()
		if !s.track(id, conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		go s.handle(id, conn)
	}
}

func (s *Server) track(id string, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[id] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handle(id string, conn net.Conn) {
	defer s.untrack(id)
	defer conn.Close()

	log := s.log.With("session", id, "remote", conn.RemoteAddr().String())
	log.Debug("connected")

	in := bufio.NewScanner(conn)
	in.Buffer(make([]byte, 0, 4096), s.maxLine)
	out := bufio.NewWriter(conn)

	for in.Scan() {
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.svc.Submit(line)
		if err := writeLine(out, resp); err != nil {
			log.Debugw("write failed", "error", err)
			return
		}
	}

	if err := in.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			_ = writeLine(out, message.Failure(errors.New("Message too long")))
		}
		log.Debugw("read failed", "error", err)
		return
	}
	log.Debug("disconnected")
}

func writeLine(w *bufio.Writer, resp message.Response) error {
	if _, err := w.Write(resp.Marshal()); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// Shutdown stops accepting, closes open connections and waits for their
// handlers, or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sessions returns the number of open connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
