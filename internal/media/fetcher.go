package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

var (
	// ErrUnsafeURL is returned for URLs the fetcher refuses to request.
	ErrUnsafeURL = errors.New("unsafe media url")
	// ErrUnsupportedType is returned when fetched content is not an allowed image type.
	ErrUnsupportedType = errors.New("unsupported media type")
)

// sharedAddressSpace is the carrier-grade NAT range, 100.64.0.0/10.
var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// AllowedTypes is the set of MIME types accepted as product images.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Blob is a fetched media payload.
type Blob struct {
	Data     []byte
	MimeType string
	Filename string
}

// BlobFetcher retrieves media bytes by URL.
type BlobFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Blob, error)
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Timeout           time.Duration
	RatePerSecond     float64
	AllowPrivateHosts bool
	MaxBytes          int
}

// Fetcher is a BlobFetcher over HTTP. Requests are rate limited and every
// hop, redirects included, must resolve to a public address unless private
// hosts are allowed. The address is checked again on every dial, so a host
// that resolves differently after the check still cannot reach an internal
// address.
type Fetcher struct {
	client       *resty.Client
	limiter      *rate.Limiter
	allowPrivate bool
	maxBytes     int
	lookup       func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NewFetcher builds a Fetcher from opts. Zero values fall back to a 30
// second timeout, no rate limit and a 20 MiB body cap.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	f := &Fetcher{
		limiter:      rate.NewLimiter(limit, 1),
		allowPrivate: opts.AllowPrivateHosts,
		maxBytes:     opts.MaxBytes,
		lookup:       net.DefaultResolver.LookupIPAddr,
	}
	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
		Control:   f.control,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	f.client = resty.New().
		SetTransport(transport).
		SetTimeout(opts.Timeout).
		SetResponseBodyLimit(opts.MaxBytes).
		SetHeader("Accept", strings.Join(AllowedTypes, ", ")).
		SetRedirectPolicy(
			resty.FlexibleRedirectPolicy(5),
			resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
				return f.checkHost(req.Context(), req.URL.Hostname())
			}),
		)
	return f
}

// Fetch downloads rawURL and returns its bytes when they are an allowed
// image type.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Blob, error) {
	u, err := f.CheckURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := f.client.R().SetContext(ctx).Get(u.String())
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, fmt.Errorf("fetching %s: body exceeds %d bytes: %w", rawURL, f.maxBytes, err)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode())
	}

	data := resp.Body()
	if len(data) == 0 {
		return nil, fmt.Errorf("fetching %s: empty body", rawURL)
	}

	mimeType, err := DetectType(data)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	return &Blob{Data: data, MimeType: mimeType, Filename: filenameFromURL(u)}, nil
}

// CheckURL parses rawURL and rejects anything other than an http or https
// URL whose host resolves to public addresses.
func (f *Fetcher) CheckURL(ctx context.Context, rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrUnsafeURL)
	}
	if err := f.checkHost(ctx, u.Hostname()); err != nil {
		return nil, err
	}
	return u, nil
}

func (f *Fetcher) checkHost(ctx context.Context, host string) error {
	if f.allowPrivate {
		return nil
	}
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		addrs, err := f.lookup(ctx, host)
		if err != nil {
			return fmt.Errorf("%w: resolving %s: %v", ErrUnsafeURL, host, err)
		}
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
	}
	if len(ips) == 0 {
		return fmt.Errorf("%w: %s has no addresses", ErrUnsafeURL, host)
	}
	for _, ip := range ips {
		if isInternal(ip) {
			return fmt.Errorf("%w: %s resolves to %s", ErrUnsafeURL, host, ip)
		}
	}
	return nil
}

// control runs on every dial with the resolved address about to be
// connected to.
func (f *Fetcher) control(_, address string, _ syscall.RawConn) error {
	if f.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", ErrUnsafeURL, address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || isInternal(ip) {
		return fmt.Errorf("%w: dialing %s", ErrUnsafeURL, address)
	}
	return nil
}

// isInternal reports loopback, private (including IPv6 unique-local),
// carrier-grade NAT, link-local and unspecified addresses.
func isInternal(ip net.IP) bool {
	return ip.IsLoopback() ||
		sharedAddressSpace.Contains(ip) ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsUnspecified()
}

// DetectType sniffs the MIME type of data and returns it when it is one of
// AllowedTypes.
func DetectType(data []byte) (string, error) {
	sniffed := http.DetectContentType(data)
	mediaType, _, err := mime.ParseMediaType(sniffed)
	if err != nil {
		mediaType = sniffed
	}
	for _, t := range AllowedTypes {
		if mediaType == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
}

func filenameFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "image"
	}
	return base
}
