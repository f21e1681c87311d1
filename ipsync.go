package ipsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the recheck interval used when WithInterval is not given.
// It matches the TTL placed on managed records, so a record is rechecked about
// as often as resolvers are allowed to cache it.
const DefaultInterval = 5 * time.Minute

var discard = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Resolver looks up the host's current public IP address.
//
// Resolve makes at most one outbound call and never retries internally;
// retry policy belongs to the scheduler.
type Resolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

// RecordClient reads and writes one zone's A record through a DNS provider API.
//
// SetIP must behave as an idempotent upsert: setting the same address twice
// leaves the record in the same state as setting it once.
type RecordClient interface {
	FetchCurrentIP(ctx context.Context, zoneID, name string) (string, error)
	SetIP(ctx context.Context, zoneID, name, ip string) error
}

// changeTracker is an optional RecordClient capability for providers that
// report propagation status of submitted changes.
type changeTracker interface {
	ChangePending(ctx context.Context) (bool, error)
}

// New returns a Client which keeps the A record for domain, in the zone
// identified by zoneID, pointed at this host's public IP address.
func New(domain string, zoneID string, options ...Option) (*Client, error) {
	if domain == "" {
		return nil, fmt.Errorf("ipsync.New: domain cannot be empty")
	}
	if zoneID == "" {
		return nil, fmt.Errorf("ipsync.New: zone ID cannot be empty")
	}
	c := &Client{
		domain:   fqdn(domain),
		zoneID:   zoneID,
		resolver: WebResolver(DefaultLookupURL),
		interval: DefaultInterval,
		logger:   discard,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ipsync.New: option %d returned an error: %s", i, err)
		}
	}

	if c.records == nil {
		return nil, fmt.Errorf("ipsync.New: no record client was registered and there is no default option - use ipsync.UsingRoute53 or ipsync.UsingCloudflare")
	}
	if c.maxBackoff == 0 {
		c.maxBackoff = 8 * c.interval
	}

	// this lets us propagate the logger to dependencies that use one if WithLogger was called before all of the dependencies were registered
	withLogger(c.logger)(c)

	c.reconciler = newReconciler(c.resolver, c.records, c.zoneID, c.domain, c.logger)
	c.sched = newScheduler(c.reconciler.Reconcile, c.interval, c.maxBackoff, c.logger)
	return c, nil
}

type Option func(*Client) error

// UsingRoute53 registers an Amazon Route 53 record client.
// Credentials come from the environment or the shared AWS config/credentials
// files; region may be empty to use whatever those resolve to.
func UsingRoute53(region string) Option {
	return func(c *Client) (err error) {
		if c.records, err = newRoute53Client(region); err != nil {
			return fmt.Errorf("ipsync.UsingRoute53: error creating Route 53 record client: %w", err)
		}
		return nil
	}
}

// UsingCloudflare registers a Cloudflare record client authenticated with the given API token.
func UsingCloudflare(token string) Option {
	return func(c *Client) (err error) {
		if c.records, err = newCloudflareClient(token); err != nil {
			return fmt.Errorf("ipsync.UsingCloudflare: error creating cloudflare record client: %w", err)
		}
		return nil
	}
}

// UsingRecordClient registers a custom RecordClient implementation.
func UsingRecordClient(rc RecordClient) Option {
	return func(c *Client) error {
		if rc == nil {
			return fmt.Errorf("record client cannot be nil")
		}
		c.records = rc
		return nil
	}
}

func UsingResolver(resolver Resolver) Option {
	return func(c *Client) error {
		if resolver == nil {
			resolver = WebResolver(DefaultLookupURL)
		}
		c.resolver = resolver
		return nil
	}
}

// UsingWebResolver resolves the public IP through the given external lookup service.
func UsingWebResolver(serviceURL string) Option {
	return func(c *Client) error {
		c.resolver = WebResolver(serviceURL)
		return nil
	}
}

// WithInterval sets the recheck interval between reconciliation ticks.
func WithInterval(interval time.Duration) Option {
	return func(c *Client) error {
		if interval <= 0 {
			return fmt.Errorf("recheck interval must be positive; got %s", interval)
		}
		c.interval = interval
		return nil
	}
}

// WithMaxBackoff caps the delay between retries after transient failures.
// The default cap is eight times the recheck interval.
func WithMaxBackoff(max time.Duration) Option {
	return func(c *Client) error {
		if max <= 0 {
			return fmt.Errorf("max backoff must be positive; got %s", max)
		}
		c.maxBackoff = max
		return nil
	}
}

func withLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = discard
		}
		type setLogger interface {
			SetLogger(logrus.FieldLogger)
		}

		switch rc := c.records.(type) {
		case *route53Client:
			rc.logger = logger
		case *cloudflareClient:
			rc.logger = logger
		case setLogger:
			rc.SetLogger(logger)
		}
		return nil
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		return nil
	}
}

func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *Client) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		switch hc := c.resolver.(type) {
		case *webResolver:
			hc.httpClient = httpclient
		case setHTTPClient:
			hc.SetHTTPClient(httpclient)
		}
		switch rc := c.records.(type) {
		case *cloudflareClient:
			cloudflare.HTTPClient(httpclient)(rc.api)
		case setHTTPClient:
			rc.SetHTTPClient(httpclient)
		}
		return nil
	}
}

// Client reconciles one DNS A record with the host's public IP address.
type Client struct {
	resolver   Resolver
	records    RecordClient
	domain     string
	zoneID     string
	interval   time.Duration
	maxBackoff time.Duration
	logger     logrus.FieldLogger
	reconciler *reconciler
	sched      *scheduler
}

// Reconcile runs a single reconciliation pass and reports its outcome.
func (c *Client) Reconcile(ctx context.Context) Outcome {
	return c.reconciler.Reconcile(ctx)
}

// Run reconciles the record on every recheck interval until ctx is canceled
// or a fatal failure occurs. It returns nil on orderly shutdown and the
// classified error when the record can never be updated without operator
// intervention (bad credentials, missing zone).
//
// The first tick fires immediately so the record is validated at startup.
func (c *Client) Run(ctx context.Context) error {
	return c.sched.Run(ctx)
}

// State returns a snapshot of the reconciler's observed state. It is safe
// to call concurrently with Run.
func (c *Client) State() ObservedState {
	return c.reconciler.State()
}

// fqdn appends the trailing dot Route 53 record names carry.
func fqdn(domain string) string {
	if strings.HasSuffix(domain, ".") {
		return domain
	}
	return domain + "."
}
