package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sentinelsoc/sentinel/internal/repository"
	apperrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/logger"
	"github.com/sentinelsoc/sentinel/pkg/metrics"
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxResponseBytes = 10 << 20

	userAgent = "Sentinel/1.0"
)

// KeySource resolves the decrypted API key of a service.
type KeySource interface {
	GetKey(ctx context.Context, service string) (string, error)
}

// Request is a single lookup.
type Request struct {
	Service string
	Target  string
	// Kind is optional; see resolveKind.
	Kind string
}

// Result carries the upstream JSON body untouched.
type Result struct {
	Service string          `json:"service"`
	Kind    Kind            `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// BatchItem is the outcome of one target in a batch.
type BatchItem struct {
	Target  string          `json:"target"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Config holds broker tunables.
type Config struct {
	Timeout          time.Duration
	MaxResponseBytes int64
	// BaseURLs overrides provider base URLs by service name.
	BaseURLs map[string]string
	// MinInterval is the minimum delay between two calls to the same service. Zero disables throttling.
	MinInterval time.Duration
}

// Broker performs lookups on behalf of authenticated users.
type Broker struct {
	keys      KeySource
	client    *http.Client
	providers map[string]Provider
	timeout   time.Duration
	maxBody   int64
	log       *zap.Logger

	mu          sync.Mutex
	minInterval time.Duration
	limiters    map[string]*rate.Limiter
}

// Option customises a Broker.
type Option func(*Broker)

// WithHTTPClient replaces the SSRF-hardened default client.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Broker) {
		if client != nil {
			b.client = client
		}
	}
}

// WithLogger overrides the broker logger.
func WithLogger(log *zap.Logger) Option {
	return func(b *Broker) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBroker constructs a Broker over the built-in provider table.
func NewBroker(keys KeySource, cfg Config, opts ...Option) (*Broker, error) {
	if keys == nil {
		return nil, errors.New("lookup broker: key source is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBytes
	}

	providers := DefaultProviders()
	for service, base := range cfg.BaseURLs {
		service = strings.ToLower(strings.TrimSpace(service))
		p, ok := providers[service]
		if !ok {
			return nil, fmt.Errorf("lookup broker: unknown service %q in base URL overrides", service)
		}
		if base = strings.TrimSpace(base); base != "" {
			if _, err := url.Parse(base); err != nil {
				return nil, fmt.Errorf("lookup broker: invalid base URL for %s: %w", service, err)
			}
			p.BaseURL = strings.TrimRight(base, "/")
			providers[service] = p
		}
	}

	b := &Broker{
		keys:        keys,
		providers:   providers,
		timeout:     timeout,
		maxBody:     maxBody,
		log:         logger.WithModule("lookup"),
		minInterval: cfg.MinInterval,
		limiters:    make(map[string]*rate.Limiter, len(providers)),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		b.client = NewSafeClient(timeout)
	}
	return b, nil
}

// Services lists the services the broker can reach.
func (b *Broker) Services() []string {
	return ServiceNames()
}

// HasService reports whether service is in the provider table.
func (b *Broker) HasService(service string) bool {
	_, ok := b.providers[normaliseService(service)]
	return ok
}

// SetMinInterval changes the per-service throttle. It applies to calls already waiting.
func (b *Broker) SetMinInterval(interval time.Duration) {
	if interval < 0 {
		interval = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minInterval = interval
	for _, limiter := range b.limiters {
		limiter.SetLimit(limitFor(interval))
	}
	b.log.Info("lookup throttle updated", zap.Duration("min_interval", interval))
}

// Lookup queries one upstream service. Validation and configuration errors
// are returned before any network I/O.
func (b *Broker) Lookup(ctx context.Context, req Request) (*Result, error) {
	service := normaliseService(req.Service)
	started := time.Now()

	result, err := b.lookup(ctx, service, req)

	label := service
	if _, ok := b.providers[service]; !ok {
		label = "unknown"
	}
	metrics.LookupRequests.WithLabelValues(label, resultLabel(err)).Inc()
	if err != nil {
		appErr := apperrors.FromError(err)
		fields := []zap.Field{
			zap.String("service", label),
			zap.String("code", appErr.Code),
			zap.Duration("duration", time.Since(started)),
		}
		if appErr.UpstreamStatus > 0 {
			fields = append(fields, zap.Int("upstream_status", appErr.UpstreamStatus))
		}
		if appErr.Internal != nil {
			fields = append(fields, zap.Error(appErr.Internal))
		}
		b.log.Warn("lookup failed", fields...)
	}
	return result, err
}

// LookupBatch runs lookups for targets one after another. A missing
// credential or an unknown service aborts the whole batch; any other failure
// is reported on the affected item.
func (b *Broker) LookupBatch(ctx context.Context, service, kind string, targets []string) ([]BatchItem, error) {
	if len(targets) == 0 {
		return nil, apperrors.NewValidation("At least one target is required")
	}
	if !b.HasService(service) {
		return nil, apperrors.NewValidation("Unsupported service: " + service)
	}

	items := make([]BatchItem, 0, len(targets))
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := b.Lookup(ctx, Request{Service: service, Target: target, Kind: kind})
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindConfig {
				return nil, err
			}
			appErr := apperrors.FromError(err)
			items = append(items, BatchItem{Target: target, Code: appErr.Code, Error: appErr.Message})
			continue
		}
		items = append(items, BatchItem{Target: target, Success: true, Data: result.Data})
	}
	return items, nil
}

func (b *Broker) lookup(ctx context.Context, service string, req Request) (*Result, error) {
	target := strings.TrimSpace(req.Target)
	if service == "" || target == "" {
		return nil, apperrors.NewValidation("Service and target required")
	}

	provider, ok := b.providers[service]
	if !ok {
		return nil, apperrors.NewValidation("Unsupported service: " + service)
	}

	kind, err := resolveKind(provider, req.Kind, target)
	if err != nil {
		return nil, err
	}
	if err := validateTarget(kind, target); err != nil {
		return nil, err
	}

	key, err := b.keys.GetKey(ctx, service)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewConfig(service)
	case errors.Is(err, repository.ErrCredentialUnusable):
		return nil, apperrors.NewConfig(service).WithInternal(err)
	case err != nil:
		return nil, apperrors.NewPersistence(err)
	}

	if err := b.limiter(service).Wait(ctx); err != nil {
		return nil, apperrors.ErrRateLimit.WithInternal(err)
	}

	data, err := b.fetch(ctx, provider, kind, target, key)
	if err != nil {
		return nil, err
	}
	return &Result{Service: service, Kind: kind, Data: data}, nil
}

func (b *Broker) fetch(ctx context.Context, p Provider, kind Kind, target, key string) (json.RawMessage, error) {
	path, query, err := p.Endpoint(kind, target)
	if err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	endpoint, err := url.Parse(p.BaseURL + path)
	if err != nil {
		return nil, apperrors.NewUpstream(p.Name, 0, fmt.Errorf("build request url: %w", err))
	}
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, apperrors.NewUpstream(p.Name, 0, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	p.Authorize(httpReq, key)

	started := time.Now()
	resp, err := b.client.Do(httpReq)
	metrics.LookupLatency.WithLabelValues(p.Name).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, transportError(p.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBody+1))
	if err != nil {
		return nil, transportError(p.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewUpstream(p.Name, resp.StatusCode, nil)
	}
	if int64(len(body)) > b.maxBody {
		appErr := apperrors.NewUpstream(p.Name, 0, fmt.Errorf("response exceeds %d bytes", b.maxBody))
		appErr.Message = p.Name + " returned an oversized response"
		return nil, appErr
	}
	if !json.Valid(body) {
		appErr := apperrors.NewUpstream(p.Name, 0, errors.New("response is not valid JSON"))
		appErr.Message = p.Name + " returned an invalid response"
		return nil, appErr
	}
	return json.RawMessage(body), nil
}

func (b *Broker) limiter(service string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	limiter, ok := b.limiters[service]
	if !ok {
		limiter = rate.NewLimiter(limitFor(b.minInterval), 1)
		b.limiters[service] = limiter
	}
	return limiter
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// transportError strips the request URL, which may carry the API key, from err.
func transportError(service string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	if isTimeout(err) {
		return apperrors.NewUpstreamTimeout(service, err)
	}
	return apperrors.NewUpstream(service, 0, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return "validation"
	case apperrors.KindConfig:
		return "config"
	case apperrors.KindUpstream:
		return "upstream"
	case apperrors.KindRateLimit:
		return "throttled"
	default:
		return "error"
	}
}

func normaliseService(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}
