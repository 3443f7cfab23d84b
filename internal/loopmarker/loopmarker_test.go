package loopmarker

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHopsNoEDNS(t *testing.T) {
	msg := new(dns.Msg)
	msg.SetQuestion("web.docker.", dns.TypeA)
	assert.Equal(t, uint16(0), GetHops(msg))
}

func TestAddThenGetHops(t *testing.T) {
	msg := new(dns.Msg)
	msg.SetQuestion("web.docker.", dns.TypeA)

	AddHops(msg, 1)
	assert.Equal(t, uint16(1), GetHops(msg))

	opt := msg.IsEdns0()
	require.NotNil(t, opt, "AddHops must attach an OPT record")
}

func TestAddHopsReplacesExisting(t *testing.T) {
	msg := new(dns.Msg)
	msg.SetQuestion("web.docker.", dns.TypeA)

	AddHops(msg, 1)
	AddHops(msg, 2)
	AddHops(msg, 3)

	assert.Equal(t, uint16(3), GetHops(msg))

	opt := msg.IsEdns0()
	count := 0
	for _, o := range opt.Option {
		if local, ok := o.(*dns.EDNS0_LOCAL); ok && local.Code == OptionCode {
			count++
		}
	}
	assert.Equal(t, 1, count, "replacing hops must not duplicate the option")
}

func TestAddHopsPreservesClientEDNS(t *testing.T) {
	msg := new(dns.Msg)
	msg.SetQuestion("web.docker.", dns.TypeA)
	msg.SetEdns0(4096, true)

	AddHops(msg, 1)

	opt := msg.IsEdns0()
	require.NotNil(t, opt)
	assert.Equal(t, uint16(4096), opt.UDPSize())
	assert.True(t, opt.Do())
	assert.Equal(t, uint16(1), GetHops(msg))
}
