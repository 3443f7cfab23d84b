// Package queryproc implements the gateway's core query decision tree: hop
// check, suffix match, gateway-name recognition, and forward-or-refuse.
// This is a direct port of the original daemon's process_dns_query
// (src/dns.c), restructured as a small decision function instead of one
// long C procedure, and built on github.com/miekg/dns and internal/gateway,
// internal/loopmarker, internal/namepolicy, internal/forwarder in place of
// ldns.
package queryproc

import (
	"context"
	"log/slog"

	"github.com/miekg/dns"

	"github.com/jroosing/dockerdns-gateway/internal/forwarder"
	"github.com/jroosing/dockerdns-gateway/internal/gateway"
	"github.com/jroosing/dockerdns-gateway/internal/helpers"
	"github.com/jroosing/dockerdns-gateway/internal/loopmarker"
	"github.com/jroosing/dockerdns-gateway/internal/namepolicy"
	"github.com/jroosing/dockerdns-gateway/internal/server"
)

// Processor ties the name policy, gateway resolver, and forwarder together
// to answer a single raw DNS query. A Processor holds no per-query state and
// is safe for concurrent use by every worker goroutine.
type Processor struct {
	Policy     namepolicy.Policy
	Gateway    *gateway.Resolver
	Forwarder  *forwarder.Forwarder
	MaxHops    int
	KeepSuffix bool
	Stats      *server.DNSStats
	Logger     *slog.Logger
}

// Handle parses reqBytes, applies the decision tree, and returns the packed
// response bytes to send back to the client. A nil return means nothing
// should be sent: the query was unparseable or had no question (matching
// the C original's silent drop on ldns_wire2pkt failure), or the response
// could not be packed.
func (p *Processor) Handle(ctx context.Context, reqBytes []byte, peer string) []byte {
	if p.Stats != nil {
		p.Stats.RecordQuery()
	}

	req := new(dns.Msg)
	if err := req.Unpack(reqBytes); err != nil {
		p.logDebug("failed to parse DNS query", "peer", peer, "error", err)
		return nil
	}
	if len(req.Question) == 0 {
		p.logDebug("query has no question section", "peer", peer)
		return nil
	}

	q := req.Question[0]
	p.logDebug("processing query", "peer", peer, "qname", q.Name, "qtype", dns.TypeToString[q.Qtype], "id", req.Id)

	hops := loopmarker.GetHops(req)
	if hops >= helpers.ClampIntToUint16(p.MaxHops) {
		p.logWarn("forwarding loop detected, exceeded max hops", "qname", q.Name, "hops", hops, "max_hops", p.MaxHops)
		if p.Stats != nil {
			p.Stats.RecordServfail()
		}
		return p.pack(p.errorResponse(req, dns.RcodeServerFailure))
	}

	resp := p.resolve(ctx, req, hops)
	if resp == nil {
		p.logDebug("no policy matched, returning REFUSED", "qname", q.Name)
		if p.Stats != nil {
			p.Stats.RecordRefused()
		}
		resp = p.errorResponse(req, dns.RcodeRefused)
	}

	return p.pack(resp)
}

// resolve applies the suffix/gateway/forward decision tree, returning nil
// when no branch produced a response (caller falls back to REFUSED).
func (p *Processor) resolve(ctx context.Context, req *dns.Msg, hops uint16) *dns.Msg {
	q := req.Question[0]

	if !p.Policy.IsMatchSuffix(q.Name) {
		p.logDebug("not an in-suffix domain, refusing", "qname", q.Name, "suffix", p.Policy.Suffix)
		return nil
	}

	if p.Policy.IsGatewayDomain(q.Name) {
		p.logDebug("handling gateway domain", "qname", q.Name)
		resp := p.Gateway.HandleGatewayQuery(req)
		if p.Stats != nil {
			p.Stats.RecordGatewayAnswer()
		}
		return resp
	}

	return p.forward(ctx, req, hops)
}

// forward handles a non-gateway, in-suffix query: types other than A/AAAA
// get an empty NOERROR response (the gateway answers no other record
// types), everything else is relayed to the upstream resolver.
func (p *Processor) forward(ctx context.Context, req *dns.Msg, hops uint16) *dns.Msg {
	q := req.Question[0]

	modifiedName := q.Name
	if p.KeepSuffix {
		modifiedName = namepolicy.StripDot(modifiedName)
	} else {
		modifiedName = p.Policy.StripSuffix(modifiedName)
	}

	if q.Qtype != dns.TypeA && q.Qtype != dns.TypeAAAA {
		p.logInfo("answering unsupported query type with empty NOERROR", "qname", modifiedName, "qtype", dns.TypeToString[q.Qtype])
		resp := new(dns.Msg)
		resp.SetReply(req)
		resp.Authoritative = true
		resp.Rcode = dns.RcodeSuccess
		return resp
	}

	fwdReq := new(dns.Msg)
	fwdReq.Id = req.Id
	fwdReq.RecursionDesired = req.RecursionDesired
	fwdReq.Question = []dns.Question{{Name: dns.Fqdn(modifiedName), Qtype: q.Qtype, Qclass: q.Qclass}}
	loopmarker.AddHops(fwdReq, helpers.ClampIntToUint16(int(hops)+1))

	p.logInfo("forwarding query upstream", "qname", modifiedName, "qtype", dns.TypeToString[q.Qtype], "upstream", p.Forwarder.Upstream)

	fwdResp, err := p.Forwarder.Forward(ctx, fwdReq)
	if err != nil {
		p.logDebug("forward failed, no response from upstream", "qname", modifiedName, "error", err)
		if p.Stats != nil {
			p.Stats.RecordRefused()
		}
		return p.errorResponse(req, dns.RcodeRefused)
	}

	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = fwdResp.Authoritative
	resp.Truncated = fwdResp.Truncated
	resp.RecursionAvailable = fwdResp.RecursionAvailable
	resp.RecursionDesired = fwdResp.RecursionDesired
	resp.Rcode = fwdResp.Rcode

	// The upstream answered the stripped name; rewrite every answer's owner
	// back to the client's original (suffixed) query name before relaying.
	for _, rr := range fwdResp.Answer {
		cloned := dns.Copy(rr)
		cloned.Header().Name = q.Name
		resp.Answer = append(resp.Answer, cloned)
	}
	resp.Ns = fwdResp.Ns
	resp.Extra = filterOPT(fwdResp.Extra)

	if p.Stats != nil {
		p.Stats.RecordForwarded()
	}
	return resp
}

// errorResponse builds a bare reply carrying only the original question and
// the given rcode, matching the C original's REFUSED/SERVFAIL branches.
func (p *Processor) errorResponse(req *dns.Msg, rcode int) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.Rcode = rcode
	return resp
}

// filterOPT strips EDNS0 OPT records (and in particular the loop marker)
// from an upstream response's additional section before it reaches the
// client, who never asked to see our internal hop counter.
func filterOPT(extra []dns.RR) []dns.RR {
	out := make([]dns.RR, 0, len(extra))
	for _, rr := range extra {
		if _, ok := rr.(*dns.OPT); ok {
			continue
		}
		out = append(out, rr)
	}
	return out
}

func (p *Processor) pack(msg *dns.Msg) []byte {
	if msg == nil {
		return nil
	}
	out, err := msg.Pack()
	if err != nil {
		p.logDebug("failed to pack response", "error", err)
		return nil
	}
	return out
}

func (p *Processor) logDebug(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Debug(msg, args...)
	}
}

func (p *Processor) logInfo(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Info(msg, args...)
	}
}

func (p *Processor) logWarn(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Warn(msg, args...)
	}
}
