package ipsync

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// DefaultLookupURL is the public IP lookup service used when no other
// resolver is configured.
const DefaultLookupURL = "https://checkip.amazonaws.com/"

// lookupTimeout bounds a single resolver call.
// 15 seconds is an eternity for the size of the request we're making,
// but this ensures that calls to Resolve will eventually complete even if the
// caller supplied context.TODO or context.Background.
const lookupTimeout = 15 * time.Second

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(context.Context) (netip.Addr, error)

func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) { return f(ctx) }

// WebResolver constructs a resolver which uses an external web service to
// look up the host's public IP address.
//
// The serviceURL must speak http and return status "200 OK",
// with a valid IP address as the first line of the response body.
// All other responses are considered an error.
//
// Each Resolve issues exactly one request; transient service failures are
// surfaced to the caller, whose backoff handles the retry.
//
// The recommended approach is to run your own service over https.
func WebResolver(serviceURL string) Resolver {
	return &webResolver{serviceURL: serviceURL}
}

type webResolver struct {
	httpClient *http.Client
	serviceURL string
}

// Resolve implements ipsync.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wr.serviceURL, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	scanner := bufio.NewReader(resp.Body)
	ipstring, _ := scanner.ReadString('\n')
	ip, err := netip.ParseAddr(strings.TrimSpace(ipstring))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	return ip, nil
}

// FromString constructs a resolver that parses an IP from the string addr.
func FromString(addr string) Resolver {
	return stringResolver(addr)
}

type stringResolver string

func (s stringResolver) Resolve(context.Context) (netip.Addr, error) {
	addr, err := netip.ParseAddr(string(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("unable to parse IP: %w", err)
	}
	return addr, nil
}

// InterfaceResolver constructs a resolver that returns the first global
// unicast address reported by the given interfaces, for hosts whose public
// address sits directly on an interface. If no interfaces are provided then
// all interfaces are considered.
func InterfaceResolver(iface ...string) Resolver {
	return interfaceResolver{ifaces: iface}
}

type interfaceResolver struct {
	ifaces []string
}

func (r interfaceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	addrs, err := r.interfaceAddrs()
	if err != nil {
		return netip.Addr{}, err
	}
	// addr: ip+net:192.168.86.253/24
	// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
	for _, addr := range addrs {
		prefix, err := netip.ParsePrefix(addr.String())
		if err != nil {
			continue
		}
		ip := prefix.Addr()
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() {
			continue
		}
		return ip, nil
	}
	return netip.Addr{}, fmt.Errorf("no global unicast address found on local interfaces")
}

func (r interfaceResolver) interfaceAddrs() ([]net.Addr, error) {
	if len(r.ifaces) == 0 {
		addrs, err := net.InterfaceAddrs()
		if err != nil {
			return nil, fmt.Errorf("error getting addresses for interface: %w", err)
		}
		return addrs, nil
	}
	var addrs []net.Addr
	for _, name := range r.ifaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("error getting interface %s by name: %w", name, err)
		}
		a, err := iface.Addrs()
		if err != nil {
			return nil, fmt.Errorf("error looking up addresses for interface %s: %w", name, err)
		}
		addrs = append(addrs, a...)
	}
	return addrs, nil
}
