package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"vlhub/hub/internal/conn"
)

// Server holds the NMDC listener and the shared Hub every accepted
// connection dispatches against. Grounded on the teacher's Server (an
// accept loop handing each connection off to its own goroutine), adapted
// from an HTTP+websocket upgrade server to a raw TCP/TLS line-protocol
// listener, since NMDC clients speak the wire protocol directly rather
// than over a websocket framing layer.
type Server struct {
	addr       string
	tlsConfig  *tls.Config
	hub        *conn.Hub
	maxConns   int
	perIPLimit int
}

// NewServer builds a Server bound to addr, dispatching accepted
// connections against hub. tlsConfig may be nil for a plaintext listener.
func NewServer(addr string, tlsConfig *tls.Config, hub *conn.Hub, maxConns, perIPLimit int) *Server {
	return &Server{
		addr:       addr,
		tlsConfig:  tlsConfig,
		hub:        hub,
		maxConns:   maxConns,
		perIPLimit: perIPLimit,
	}
}

// Run listens and serves NMDC connections until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	slog.Info("hub listening", "addr", s.addr, "tls", s.tlsConfig != nil)

	var (
		mu       sync.Mutex
		total    int
		perIP    = make(map[string]int)
		wg       sync.WaitGroup
	)

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(acceptBackoff)
				continue
			}
			slog.Warn("accept error", "error", err)
			time.Sleep(acceptBackoff)
			continue
		}

		host, _, _ := net.SplitHostPort(c.RemoteAddr().String())

		mu.Lock()
		if s.maxConns > 0 && total >= s.maxConns {
			mu.Unlock()
			_ = c.Close()
			continue
		}
		if s.perIPLimit > 0 && perIP[host] >= s.perIPLimit {
			mu.Unlock()
			_ = c.Close()
			continue
		}
		total++
		perIP[host]++
		mu.Unlock()

		wg.Add(1)
		go func(c net.Conn, host string) {
			defer wg.Done()
			defer func() {
				mu.Lock()
				total--
				perIP[host]--
				if perIP[host] <= 0 {
					delete(perIP, host)
				}
				mu.Unlock()
			}()
			conn.New(s.hub, c).Serve(ctx)
		}(c, host)
	}
}
