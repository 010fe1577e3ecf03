package http2

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

var (
	// ErrServerSupport indicates whether the server supports HTTP/2 or not.
	ErrServerSupport = errors.New("server doesn't support HTTP/2")
)

type ClientOpts struct {
	// OnRTT is assigned to every client after creation, and the handler
	// will be called after every RTT measurement (after receiving a PONG mesage).
	OnRTT func(time.Duration)
}

func configureDialer(d *Dialer) {
	if d.TLSConfig == nil {
		d.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		}
	}

	tlsConfig := d.TLSConfig

	emptyServerName := len(tlsConfig.ServerName) == 0
	if emptyServerName {
		host, _, err := net.SplitHostPort(d.Addr)
		if err != nil {
			host = d.Addr
		}

		tlsConfig.ServerName = host
	}

	tlsConfig.NextProtos = append(tlsConfig.NextProtos, "h2")
}

// ConfigureClient configures the fasthttp.HostClient to run over HTTP/2.
func ConfigureClient(c *fasthttp.HostClient, opts ClientOpts) error {
	emptyServerName := c.TLSConfig != nil && len(c.TLSConfig.ServerName) == 0

	d := &Dialer{
		Addr:      c.Addr,
		TLSConfig: c.TLSConfig,
	}

	c2, err := d.Dial(ConnOpts{OnRTT: opts.OnRTT})
	if err != nil {
		if errors.Is(err, ErrServerSupport) && c.TLSConfig != nil { // remove added config settings
			for i := range c.TLSConfig.NextProtos {
				if c.TLSConfig.NextProtos[i] == "h2" {
					c.TLSConfig.NextProtos = append(c.TLSConfig.NextProtos[:i], c.TLSConfig.NextProtos[i+1:]...)
				}
			}

			if emptyServerName {
				c.TLSConfig.ServerName = ""
			}
		}

		return err
	}
	_ = c2.Close()

	c.IsTLS = true
	c.TLSConfig = d.TLSConfig

	cl := &client{d: d, opts: opts}

	c.Transport = cl.Do

	return nil
}

var ErrNotAvailableStreams = errors.New("ran out of available streams")

// client pools HTTP/2 connections opened against a single fasthttp.HostClient
// target, dialing new ones on demand and discarding closed ones.
type client struct {
	d    *Dialer
	opts ClientOpts

	mu    sync.Mutex
	conns []*Conn
}

func (cl *client) acquireConn() (*Conn, error) {
	cl.mu.Lock()
	for len(cl.conns) > 0 {
		n := len(cl.conns) - 1
		c := cl.conns[n]
		cl.conns = cl.conns[:n]

		if !c.Closed() {
			cl.mu.Unlock()
			return c, nil
		}
	}
	cl.mu.Unlock()

	return cl.d.Dial(ConnOpts{OnRTT: cl.opts.OnRTT})
}

func (cl *client) releaseConn(c *Conn) {
	if c.Closed() {
		return
	}

	cl.mu.Lock()
	cl.conns = append(cl.conns, c)
	cl.mu.Unlock()
}

// Do implements fasthttp.HostClient's TransportFunc contract: it performs
// req over an HTTP/2 connection and reports whether the caller should retry
// on a fresh connection.
func (cl *client) Do(req *fasthttp.Request, res *fasthttp.Response) (bool, error) {
	c, err := cl.acquireConn()
	if err != nil {
		return false, err
	}

	err = c.Do(req, res)
	if err != nil {
		return !c.Closed(), err
	}

	cl.releaseConn(c)

	return false, nil
}
