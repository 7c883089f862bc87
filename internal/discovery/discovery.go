// Package discovery resolves the network address of the gateway service.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maraichr/nightcrawler/internal/config"
)

const gatewayCacheKey = "gateway-address"

// Resolver looks up the base address of a service type.
type Resolver interface {
	Lookup(ctx context.Context, serviceType string) (string, error)
}

// Service is one registered instance as reported by the discovery server.
type Service struct {
	ID          string   `json:"id"`
	ServiceType string   `json:"serviceType"`
	Address     string   `json:"address"`
	Tags        []string `json:"tags"`
}

// Client queries discovery servers in order until one answers.
type Client struct {
	addresses   []string
	secureToken string
	http        *http.Client
}

func NewClient(addresses []string, secureToken string) *Client {
	return &Client{
		addresses:   addresses,
		secureToken: secureToken,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup returns the API base address of the first registered instance of
// serviceType.
func (c *Client) Lookup(ctx context.Context, serviceType string) (string, error) {
	if len(c.addresses) == 0 {
		return "", errors.New("no discovery addresses configured")
	}

	var errs []error
	for _, addr := range c.addresses {
		services, err := c.services(ctx, addr, serviceType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		if len(services) == 0 || services[0].Address == "" {
			errs = append(errs, fmt.Errorf("%s: no %q service is running", addr, serviceType))
			continue
		}
		return apiBase(services[0].Address), nil
	}
	return "", errors.Join(errs...)
}

func (c *Client) services(ctx context.Context, addr, serviceType string) ([]Service, error) {
	endpoint := strings.TrimRight(addr, "/") + "/api/services/filter/serviceType/" + url.PathEscape(serviceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.secureToken != "" {
		req.Header.Set("Authorization", "SecureToken "+c.secureToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("discovery error (status %d): %s", resp.StatusCode, string(body))
	}

	var services []Service
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	return services, nil
}

// apiBase turns a service address into the base of its HTTP API.
func apiBase(address string) string {
	return strings.TrimRight(address, "/") + "/api"
}

// GatewayLocator resolves the gateway base address.
type GatewayLocator interface {
	ResolveGatewayAddress(ctx context.Context) (string, bool)
}

// NewGatewayLocator uses the configured gateway address when there is one
// and falls back to cached lookups against the discovery servers.
func NewGatewayLocator(gw config.GatewayConfig, d config.DiscoveryConfig, logger *slog.Logger) (GatewayLocator, error) {
	if gw.Address != "" {
		return StaticLocator(gw.Address), nil
	}
	if len(d.Addresses) == 0 {
		return nil, errors.New("neither GATEWAY_ADDRESS nor DISCOVERY_ADDRESSES is set")
	}
	return NewCachedLocator(NewClient(d.Addresses, d.SecureToken), gw.ServiceType, d.CacheTTL, logger), nil
}

// StaticLocator always resolves to a fixed gateway address.
type StaticLocator string

func (s StaticLocator) ResolveGatewayAddress(context.Context) (string, bool) {
	if s == "" {
		return "", false
	}
	return strings.TrimRight(string(s), "/"), true
}

// CachedLocator resolves the gateway through a Resolver and caches the result
// with a sliding expiration: every hit pushes the expiry out by ttl again.
// Failed lookups are not cached.
type CachedLocator struct {
	resolver    Resolver
	serviceType string
	cache       *expirable.LRU[string, string]
	logger      *slog.Logger
}

func NewCachedLocator(resolver Resolver, serviceType string, ttl time.Duration, logger *slog.Logger) *CachedLocator {
	return &CachedLocator{
		resolver:    resolver,
		serviceType: serviceType,
		cache:       expirable.NewLRU[string, string](1, nil, ttl),
		logger:      logger,
	}
}

// ResolveGatewayAddress returns the gateway base address, or false when it
// could not be resolved.
func (l *CachedLocator) ResolveGatewayAddress(ctx context.Context) (string, bool) {
	if addr, ok := l.cache.Get(gatewayCacheKey); ok {
		l.cache.Add(gatewayCacheKey, addr)
		return addr, true
	}

	l.logger.Info("resolving gateway address", slog.String("service_type", l.serviceType))
	addr, err := l.resolver.Lookup(ctx, l.serviceType)
	if err != nil {
		l.logger.Error("gateway address wasn't retrieved",
			slog.String("service_type", l.serviceType),
			slog.String("error", err.Error()))
		return "", false
	}

	l.logger.Info("gateway address retrieved", slog.String("address", addr))
	l.cache.Add(gatewayCacheKey, addr)
	return addr, true
}
