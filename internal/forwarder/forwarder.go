// Package forwarder relays a query to the upstream resolver over a brand
// new UDP socket per call.
//
// This deliberately diverges from the teacher repo's ForwardingResolver
// (internal/resolvers/forwarding_resolver.go), which pools UDP connections
// per upstream and caches responses by TTL. Per-query freshness is a hard
// invariant here: no connection pooling, no response caching, and no shared
// mutable state between concurrent forwards, so a malformed or malicious
// upstream reply can never poison a later, unrelated query. What is kept
// from the teacher is the low-level idiom for a single deadline-bound
// send/receive over a *net.UDPConn (queryOneAttempt).
//
// The 2-second timeout and single retry match the original docker-dns C
// daemon's create_fresh_resolver (struct timeval{2,0}, ldns_resolver_set_retry(1)).
package forwarder

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const (
	// DefaultTimeout is the per-attempt UDP read/write deadline.
	DefaultTimeout = 2 * time.Second
	// DefaultRetries is the number of retries after an initial failed attempt.
	DefaultRetries = 1
)

// Forwarder sends a single query to a fixed upstream resolver and returns
// its reply. A Forwarder holds no per-query state; the same value may be
// shared across goroutines, but each Forward call dials its own socket.
type Forwarder struct {
	// Upstream is the resolver address, host or host:port (port defaults to 53).
	Upstream string
	// Timeout bounds each individual send/receive attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Retries is how many additional attempts follow an initial failure. Zero means no retry;
	// negative values are treated as zero. New sets DefaultRetries.
	Retries int
}

// New creates a Forwarder targeting upstream with the original daemon's
// default timeout and retry count.
func New(upstream string) *Forwarder {
	return &Forwarder{Upstream: upstream, Timeout: DefaultTimeout, Retries: DefaultRetries}
}

// Forward sends req to the upstream resolver and returns its parsed
// response. A fresh *net.UDPConn is dialed, used, and closed for this call
// alone — never reused across queries or goroutines.
func (f *Forwarder) Forward(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := f.Retries
	if retries < 0 {
		retries = 0
	}

	addr := f.Upstream
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := f.attempt(ctx, addr, req, timeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("forwarder: query to %s failed after %d attempt(s): %w", addr, retries+1, lastErr)
}

// attempt performs exactly one send/receive round trip over a fresh socket.
func (f *Forwarder) attempt(ctx context.Context, addr string, req *dns.Msg, timeout time.Duration) (*dns.Msg, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	reqBytes, err := req.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack request: %w", err)
	}
	if _, err := conn.Write(reqBytes); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	buf := make([]byte, dns.DefaultMsgSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	resp := new(dns.Msg)
	if err := resp.Unpack(buf[:n]); err != nil {
		return nil, fmt.Errorf("unpack response: %w", err)
	}
	return resp, nil
}
