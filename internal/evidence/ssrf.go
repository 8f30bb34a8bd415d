/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package evidence

import (
	"context"
	"fmt"
	"net"
)

// HostPolicy decides whether resolved peer IPs for an HTTP-based
// provider's target host are acceptable (§4.3.2: "host names are
// resolved per request and the resolved peer IPs are checked against a
// policy"). The default policy denies private/link-local addresses,
// including IPv4-mapped IPv6, and can be overridden with an explicit
// allow/deny list.
type HostPolicy struct {
	AllowPrivate bool
	Allowlist    []*net.IPNet
	Denylist     []*net.IPNet
	Resolver     func(ctx context.Context, host string) ([]net.IP, error)
}

// DefaultHostPolicy denies RFC 1918 / link-local / loopback / unique-local
// ranges unless AllowPrivate is set.
func DefaultHostPolicy() HostPolicy {
	return HostPolicy{
		Resolver: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip", host)
		},
	}
}

// CheckHost resolves host and validates every resolved IP against the
// policy; a single disallowed IP fails the whole host closed.
func (p HostPolicy) CheckHost(ctx context.Context, host string) error {
	resolver := p.Resolver
	if resolver == nil {
		resolver = DefaultHostPolicy().Resolver
	}
	ips, err := resolver(ctx, host)
	if err != nil {
		return fmt.Errorf("evidence: resolve host %q: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("evidence: host %q resolved to no addresses", host)
	}
	for _, ip := range ips {
		if err := p.checkIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func (p HostPolicy) checkIP(ip net.IP) error {
	for _, n := range p.Denylist {
		if n.Contains(ip) {
			return fmt.Errorf("evidence: ip %s is denylisted", ip)
		}
	}
	for _, n := range p.Allowlist {
		if n.Contains(ip) {
			return nil
		}
	}
	if len(p.Allowlist) > 0 {
		return fmt.Errorf("evidence: ip %s is not in the configured allowlist", ip)
	}
	if !p.AllowPrivate && isPrivateOrLinkLocal(ip) {
		return fmt.Errorf("evidence: ip %s is private/link-local and not permitted", ip)
	}
	return nil
}

// isPrivateOrLinkLocal treats the IPv4-mapped form of an IPv6 address as
// its IPv4 equivalent before testing, so ::ffff:127.0.0.1 is caught too.
func isPrivateOrLinkLocal(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
