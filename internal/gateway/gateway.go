// Package gateway synthesizes the DNS answer for the daemon's single
// distinguished gateway name, backed by the host's default route read from
// /proc/net/route. This is a direct port of the original daemon's
// resolve_gateway_ip and handle_gateway_query (src/gateway.c), rebuilt on
// github.com/miekg/dns for message construction.
package gateway

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
)

// DefaultRoutePath is the standard Linux route table used by Refresh.
const DefaultRoutePath = "/proc/net/route"

// gatewayTTL is the TTL stamped on the synthesized A record, matching the
// "60 IN A" literal in the C original's handle_gateway_query.
const gatewayTTL = 60

// ErrNoDefaultRoute is returned when /proc/net/route contains no usable
// default route (destination 0.0.0.0 with a non-zero gateway column).
var ErrNoDefaultRoute = errors.New("gateway: no default route found")

// Resolver tracks the host's default-gateway IPv4 address and answers
// queries for the gateway name with it.
//
// addr stores the address as its big-endian uint32 wire representation
// (byte-swapped from the little-endian hex of /proc/net/route's gateway
// column), 0 meaning "not yet resolved". atomic.Uint32 lets concurrent query-processing
// goroutines read the cached address without a lock; Refresh may race
// harmlessly with concurrent reads (benign double-checked re-resolution),
// matching the C original's unsynchronized global.
type Resolver struct {
	addr      atomic.Uint32
	RoutePath string
}

// New creates a Resolver. RoutePath defaults to DefaultRoutePath.
func New() *Resolver {
	return &Resolver{RoutePath: DefaultRoutePath}
}

// Addr returns the currently cached gateway address, or nil if unresolved.
func (r *Resolver) Addr() net.IP {
	v := r.addr.Load()
	if v == 0 {
		return nil
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return net.IP(b)
}

// Refresh re-reads the route table and updates the cached gateway address.
// Returns ErrNoDefaultRoute if no default route is present.
func (r *Resolver) Refresh() error {
	path := r.RoutePath
	if path == "" {
		path = DefaultRoutePath
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("gateway: open %s: %w", path, err)
	}
	defer f.Close()

	addr, err := parseDefaultGateway(f)
	if err != nil {
		return err
	}
	r.addr.Store(addr)
	return nil
}

// parseDefaultGateway scans a /proc/net/route-formatted reader for the
// first row with destination 0x00000000 and a non-zero gateway column,
// returning the gateway address as its big-endian uint32 wire value.
//
// The kernel encodes both columns little-endian-in-hex (e.g. default route
// via 192.168.1.1 appears as gateway column "0101A8C0"), so the parsed
// value is byte-swapped before being treated as the wire (big-endian) IPv4
// representation — mirroring the raw struct-copy the C original performs
// between its little-endian in_addr_t and inet_ntoa.
func parseDefaultGateway(r io.Reader) (uint32, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return 0, fmt.Errorf("gateway: empty route table")
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		dest, err := strconv.ParseUint(fields[1], 16, 32)
		if err != nil {
			continue
		}
		if dest != 0 {
			continue
		}
		gw, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			continue
		}
		if gw == 0 {
			continue
		}
		return swapEndian32(uint32(gw)), nil
	}
	return 0, ErrNoDefaultRoute
}

func swapEndian32(v uint32) uint32 {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return binary.BigEndian.Uint32(b)
}

// HandleGatewayQuery builds the response for a query already identified as
// targeting the gateway name (namepolicy.Policy.IsGatewayDomain). Only type
// A queries receive an answer record; any other type gets a bare NOERROR
// response, matching the C original's "unsupported query type for gateway"
// branch. If the gateway address is unresolved, a refresh is attempted
// inline before falling back to SERVFAIL.
func (r *Resolver) HandleGatewayQuery(req *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.RecursionAvailable = true
	resp.Rcode = dns.RcodeSuccess

	q := req.Question[0]
	if q.Qtype != dns.TypeA {
		return resp
	}

	addr := r.Addr()
	if addr == nil {
		if err := r.Refresh(); err != nil {
			resp.Rcode = dns.RcodeServerFailure
			return resp
		}
		addr = r.Addr()
	}

	rr := &dns.A{
		Hdr: dns.RR_Header{
			Name:   q.Name,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    gatewayTTL,
		},
		A: addr,
	}
	resp.Answer = append(resp.Answer, rr)
	return resp
}

// ProbeUpstream performs a short liveness check against the forwarding
// resolver by querying containerName's A record, matching the C original's
// test_forward_dns startup check. It is advisory only: the daemon logs but
// does not refuse to start when it fails, since the upstream may simply not
// be up yet.
func ProbeUpstream(forwardDNS, containerName string) error {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(containerName), dns.TypeA)
	m.RecursionDesired = true

	c := &dns.Client{Timeout: 2 * time.Second}
	_, _, err := c.Exchange(m, net.JoinHostPort(forwardDNS, "53"))
	return err
}
