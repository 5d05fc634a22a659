package xsocket

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/srtkit/xtransmit/addr"
)

// Endpoint is the parsed form of one connection URI, per spec §3 and the
// URI grammar in spec §6. It is constructed once by ParseEndpoint and
// consumed by the socket constructors; it never parses raw strings itself
// again after construction.
type Endpoint struct {
	Raw     string
	Kind    Kind
	Host    string
	Port    int
	Options map[string]string

	Mode      Mode
	Blocking  bool
	BindHost  string
	BindPort  int
	HasBind   bool
	Weight    int
	HasWeight bool
	GroupType GroupType
}

// recognizedOptions is the fixed, build-time set of option keys a reliable
// endpoint may carry, per spec §4.8.1 and §9's "Configuration option
// validation" design note. transtype/messageapi/sndbuf/rcvbuf are accepted
// and stashed in Options for xsocket constructors to apply as
// pre-connection socket options; this implementation's raw-fd TCP/UDP
// stand-in (SPEC_FULL.md §14) only acts on sndbuf/rcvbuf.
var recognizedOptions = map[string]bool{
	"mode": true, "bind": true, "blocking": true, "transtype": true,
	"messageapi": true, "sndbuf": true, "rcvbuf": true,
	"weight": true, "grouptype": true,
}

// falseStrings is the boolean-false set from spec §6.
var falseStrings = map[string]bool{"0": true, "no": true, "off": true, "false": true}

// isFalse reports whether v is one of the boolean-false spellings spec §6
// recognizes. Any other spelling (including the empty string) is true.
func isFalse(v string) bool {
	return falseStrings[strings.ToLower(v)]
}

// ParseEndpoint parses one URI of the grammar
// transport://host:port?opt1=v1&opt2=v2 into an Endpoint, per spec §6.
// defaultBlocking supplies the blocking default (false outside file modes,
// true inside them, per spec §4.8.1) when the URI carries no explicit
// blocking option. Unknown option keys fail with ErrOptionInvalid.
func ParseEndpoint(rawURL string, defaultBlocking bool) (Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Endpoint{}, ErrAddressInvalid
	}

	ep := Endpoint{
		Raw:      rawURL,
		Host:     u.Hostname(),
		Options:  map[string]string{},
		Blocking: defaultBlocking,
	}

	switch strings.ToLower(u.Scheme) {
	case "srt":
		ep.Kind = Reliable
	case "udp":
		ep.Kind = UDP
	case "mudp":
		ep.Kind = MUDP
	default:
		return Endpoint{}, ErrOptionInvalid
	}

	if p := u.Port(); p != "" {
		port, err := addr.PortFromString(p)
		if err != nil {
			return Endpoint{}, ErrAddressInvalid
		}
		ep.Port = port
	}

	for k, vs := range u.Query() {
		if len(vs) == 0 {
			continue
		}
		lk := strings.ToLower(k)
		if !recognizedOptions[lk] {
			return Endpoint{}, ErrOptionInvalid
		}
		ep.Options[lk] = vs[0]
	}

	switch strings.ToLower(ep.Options["mode"]) {
	case "caller":
		ep.Mode = ModeCaller
	case "listener":
		ep.Mode = ModeListener
	case "rendezvous":
		ep.Mode = ModeRendezvous
	case "", "default":
		ep.Mode = ModeDefault
	default:
		return Endpoint{}, ErrOptionInvalid
	}

	if v, ok := ep.Options["blocking"]; ok {
		ep.Blocking = !isFalse(v)
	}

	if v, ok := ep.Options["bind"]; ok {
		host, portStr, err := splitBind(v)
		if err != nil {
			return Endpoint{}, ErrOptionInvalid
		}
		ep.BindHost = host
		ep.HasBind = true
		if portStr != "" {
			port, err := addr.PortFromString(portStr)
			if err != nil {
				return Endpoint{}, ErrOptionInvalid
			}
			ep.BindPort = port
		}
	}

	if v, ok := ep.Options["weight"]; ok {
		w, err := strconv.Atoi(v)
		if err != nil || w < 0 || w > 32767 {
			return Endpoint{}, ErrOptionInvalid
		}
		ep.Weight = w
		ep.HasWeight = true
	}

	switch strings.ToLower(ep.Options["grouptype"]) {
	case "broadcast":
		ep.GroupType = GroupBroadcast
	case "backup":
		ep.GroupType = GroupBackup
	case "":
		ep.GroupType = GroupNone
	default:
		return Endpoint{}, ErrOptionInvalid
	}

	if ep.Mode == ModeRendezvous && ep.GroupType != GroupNone {
		return Endpoint{}, ErrOptionInvalid
	}

	return ep, nil
}

// splitBind splits a "bind=ip[:port]" value into host and optional port.
func splitBind(v string) (host, port string, err error) {
	if !strings.Contains(v, ":") {
		return v, "", nil
	}
	return net.SplitHostPort(v)
}
