package session

import (
	"net"
	"sync"

	"golang.org/x/net/netutil"

	"go.bryk.io/hive/internal/pool"
	xlog "go.bryk.io/hive/log"
	"go.bryk.io/hive/vhost"
)

// Server owns the TCP acceptor and the connection registry, keyed by the
// underlying network connection handle per spec §4.8.
type Server struct {
	vh   *vhost.VirtualHost
	pool *pool.Pool
	log  xlog.Logger

	maxConnections int

	mu    sync.Mutex
	conns map[net.Conn]*Connection

	listener net.Listener
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithMaxConnections bounds the number of simultaneously accepted
// connections, using golang.org/x/net/netutil.LimitListener.
func WithMaxConnections(n int) Option {
	return func(s *Server) { s.maxConnections = n }
}

// NewServer constructs a Server bound to `vh` and dispatching delivery
// tasks onto `workers`.
func NewServer(vh *vhost.VirtualHost, workers *pool.Pool, log xlog.Logger, opts ...Option) *Server {
	s := &Server{
		vh:    vh,
		pool:  workers,
		log:   log,
		conns: make(map[net.Conn]*Connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections on `listener` until it is closed, dispatching
// each to its own goroutine running the decode/dispatch loop.
func (s *Server) Serve(listener net.Listener) error {
	if s.maxConnections > 0 {
		listener = netutil.LimitListener(listener, s.maxConnections)
	}
	s.listener = listener

	for {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		c := newConnection(conn, s.vh, s.pool, s.log)

		s.mu.Lock()
		s.conns[conn] = c
		s.mu.Unlock()

		go func() {
			c.Serve()
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// Close stops accepting new connections and tears down every registered
// one.
func (s *Server) Close() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[net.Conn]*Connection)
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	return err
}

// ActiveConnections reports the number of currently registered connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
