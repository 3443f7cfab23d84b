// Package loopmarker implements the gateway's anti-loop hop counter. Each
// time a query is forwarded, the forwarder stamps the outgoing request with
// an EDNS0 local option carrying a hop count one higher than the value it
// read off the incoming query; the query processor refuses to forward a
// query whose hop count has reached the configured maximum.
//
// This is a direct port of the original daemon's add_loop_marker and
// get_loop_marker (src/loop_marker.c), rebuilt on github.com/miekg/dns's
// EDNS0_LOCAL option instead of ldns's option list API.
package loopmarker

import (
	"encoding/binary"

	"github.com/miekg/dns"
)

// OptionCode is the private EDNS0 option code used to carry the hop count,
// matching MY_OPTION_CODE in the C original.
const OptionCode = 65001

// hopDataLen is the wire size of the hop counter payload (uint16, big-endian).
const hopDataLen = 2

// GetHops returns the hop count carried in msg's EDNS0 OPT record, or 0 if
// msg has no EDNS0 record or no matching option (a query that has never
// passed through a docker-dns gateway).
func GetHops(msg *dns.Msg) uint16 {
	opt := msg.IsEdns0()
	if opt == nil {
		return 0
	}
	for _, o := range opt.Option {
		local, ok := o.(*dns.EDNS0_LOCAL)
		if !ok || local.Code != OptionCode {
			continue
		}
		if len(local.Data) < hopDataLen {
			return 0
		}
		return binary.BigEndian.Uint16(local.Data)
	}
	return 0
}

// AddHops ensures msg carries an EDNS0 OPT record and sets (or replaces) the
// hop-count option to hops. Safe to call on a message that already has
// EDNS0 from the original client, or none at all.
func AddHops(msg *dns.Msg, hops uint16) {
	opt := msg.IsEdns0()
	if opt == nil {
		msg.SetEdns0(dns.DefaultMsgSize, false)
		opt = msg.IsEdns0()
	}

	data := make([]byte, hopDataLen)
	binary.BigEndian.PutUint16(data, hops)
	local := &dns.EDNS0_LOCAL{Code: OptionCode, Data: data}

	for i, o := range opt.Option {
		if existing, ok := o.(*dns.EDNS0_LOCAL); ok && existing.Code == OptionCode {
			opt.Option[i] = local
			return
		}
	}
	opt.Option = append(opt.Option, local)
}
