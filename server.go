package http2

import (
	"bufio"
	"log"
	"net"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// ServerConfig tunes a Server's protocol-level limits. The zero value is
// usable; call nothing and defaults() fills it in lazily on first use.
type ServerConfig struct {
	// Debug enables verbose per-frame logging through the fasthttp.Server's
	// Logger (or the package default if none is set).
	Debug bool

	// MaxConcurrentStreams caps how many streams a single connection may
	// have open at once. Zero means defaultMaxConcurrentStreams.
	MaxConcurrentStreams int

	// MaxWindowSize is the initial flow-control window this server
	// advertises for every stream and for the connection. Zero means
	// defaultMaxWindowSize.
	MaxWindowSize int32

	// MaxRequestTime bounds how long a stream may stay open waiting for a
	// request to finish; zero disables the timeout.
	MaxRequestTime time.Duration

	// MaxIdleTime closes a connection that hasn't completed a request in
	// this long; zero disables the timeout.
	MaxIdleTime time.Duration

	// PingInterval controls how often the server pings an idle connection
	// to measure RTT. Zero means DefaultPingInterval.
	PingInterval time.Duration

	defaulted bool
}

func (cnf *ServerConfig) defaults() {
	if cnf.defaulted {
		return
	}

	if cnf.MaxConcurrentStreams <= 0 {
		cnf.MaxConcurrentStreams = defaultMaxConcurrentStreams
	}

	if cnf.MaxWindowSize <= 0 {
		cnf.MaxWindowSize = defaultMaxWindowSize
	}

	if cnf.PingInterval <= 0 {
		cnf.PingInterval = DefaultPingInterval
	}

	cnf.defaulted = true
}

// defaultLogger is used whenever a fasthttp.Server has no Logger configured.
// fasthttp.Logger only requires Printf, which *log.Logger already satisfies.
var defaultLogger = log.New(os.Stdout, "[http2] ", log.LstdFlags)

// Server serves HTTP/2 connections by handing them to a fasthttp.Server's
// Handler, once the connection has gone through the HTTP/2 preface and
// settings handshake.
type Server struct {
	s   *fasthttp.Server
	cnf ServerConfig
}

// NewServer wraps s to serve HTTP/2 connections with the given config.
func NewServer(s *fasthttp.Server, cnf ServerConfig) *Server {
	return &Server{s: s, cnf: cnf}
}

// ConfigureServer registers HTTP/2 as a TLS ALPN protocol on s, so that
// s.Serve(tlsListener) transparently upgrades negotiating clients.
func ConfigureServer(s *fasthttp.Server, cnf ServerConfig) *Server {
	h2s := NewServer(s, cnf)
	s.NextProto(H2TLSProto, h2s.ServeConn)
	return h2s
}

// ServeConn takes ownership of c, validates the HTTP/2 preface, and runs
// the connection until it closes. It is suitable as a fasthttp.Server
// NextProto handler or as a direct h2c entry point.
func (s *Server) ServeConn(c net.Conn) error {
	defer func() { _ = c.Close() }()

	s.cnf.defaults()

	br := bufio.NewReaderSize(c, 4096)

	if err := ReadPreface(br); err != nil {
		return err
	}

	logger := s.s.Logger
	if logger == nil {
		logger = defaultLogger
	}

	sc := &serverConn{
		c:      c,
		h:      s.s.Handler,
		br:     br,
		bw:     bufio.NewWriterSize(c, maxFrameSize*10),
		lastID: 0,
		writer: make(chan *FrameHeader, 128),
		reader: make(chan *FrameHeader, 128),

		maxWindow:      s.cnf.MaxWindowSize,
		currentWindow:  s.cnf.MaxWindowSize,
		maxRequestTime: s.cnf.MaxRequestTime,
		pingInterval:   s.cnf.PingInterval,
		maxIdleTime:    s.cnf.MaxIdleTime,

		debug:  s.cnf.Debug,
		logger: logger,
	}

	sc.st.Reset()
	sc.st.SetMaxWindowSize(uint32(s.cnf.MaxWindowSize))
	sc.st.SetMaxConcurrentStreams(s.cnf.MaxConcurrentStreams)
	sc.st.SetPush(false)

	sc.clientS.Reset()

	if err := sc.Handshake(); err != nil {
		return err
	}

	return sc.Serve()
}
