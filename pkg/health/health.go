// Package health aggregates reachability probes for the relay's backing
// stores. Probes registered as optional only degrade the overall status
// when they fail; the relay keeps forwarding without them.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const probeTimeout = 5 * time.Second

// A Probe reports whether a single dependency is reachable.
type Probe interface {
	Name() string
	Check(ctx context.Context) error
}

type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type registeredProbe struct {
	probe    Probe
	optional bool
}

type Registry struct {
	probes []registeredProbe
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a probe whose failure makes the service unhealthy.
func (r *Registry) Register(p Probe) {
	r.probes = append(r.probes, registeredProbe{probe: p})
}

// RegisterOptional adds a probe whose failure only degrades the service.
func (r *Registry) RegisterOptional(p Probe) {
	r.probes = append(r.probes, registeredProbe{probe: p, optional: true})
}

func (r *Registry) Check(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(r.probes)),
	}

	for _, rp := range r.probes {
		result := CheckResult{Status: StatusHealthy, Timestamp: time.Now()}

		if err := rp.probe.Check(ctx); err != nil {
			result.Message = err.Error()
			if rp.optional {
				result.Status = StatusDegraded
				if report.Status == StatusHealthy {
					report.Status = StatusDegraded
				}
			} else {
				result.Status = StatusUnhealthy
				report.Status = StatusUnhealthy
			}
		}

		report.Checks[rp.probe.Name()] = result
	}

	return report
}

type MongoProbe struct {
	client *mongo.Client
}

func NewMongoProbe(client *mongo.Client) *MongoProbe {
	return &MongoProbe{client: client}
}

func (p *MongoProbe) Name() string { return "mongodb" }

func (p *MongoProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := p.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

type RedisProbe struct {
	client *redis.Client
}

func NewRedisProbe(client *redis.Client) *RedisProbe {
	return &RedisProbe{client: client}
}

func (p *RedisProbe) Name() string { return "redis" }

func (p *RedisProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
