// Package security holds outbound network policy for tools that fetch
// model-chosen URLs.
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"conductor/internal/domain"
)

var blockedRanges = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", c, err))
		}
		out = append(out, ipnet)
	}
	return out
}

// IsPrivateIP reports whether ip is loopback, link-local, private or
// otherwise reserved. IPv4-mapped IPv6 addresses are checked as IPv4.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, ipnet := range blockedRanges {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver is the part of *net.Resolver the guarded dialer needs.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// GuardedDialer resolves a host once, rejects it if any address is private,
// and connects to the first validated address so a second lookup cannot
// rebind the name.
type GuardedDialer struct {
	Resolver Resolver
	Dialer   *net.Dialer
}

// DialContext implements the http.Transport dial hook.
func (d *GuardedDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	var ips []net.IPAddr
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IPAddr{{IP: ip}}
	} else {
		ips, err = d.Resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", host, err)
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("resolve %s: no addresses", host)
		}
	}

	for _, ip := range ips {
		if IsPrivateIP(ip.IP) {
			return nil, domain.NewDomainError("GuardedDialer.DialContext", domain.ErrSSRFBlocked,
				fmt.Sprintf("%s resolves to %s", host, ip.IP))
		}
	}
	return d.Dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
}

// NewGuardedTransport returns a transport whose connections never reach a
// private or reserved address.
func NewGuardedTransport(dialTimeout time.Duration) *http.Transport {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	dialer := &GuardedDialer{
		Resolver: net.DefaultResolver,
		Dialer:   &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second},
	}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
