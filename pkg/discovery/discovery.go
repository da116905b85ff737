package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/palantir/stacktrace"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/log"
)

const (
	serviceKeyPrefix = "services:"
	// registrations expire so stale services vanish without a janitor
	serviceTTL = 5 * time.Minute
)

// ServiceInfo is one discovered service of the trading ecosystem
type ServiceInfo struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Host          string            `json:"host"`
	HTTPPort      int               `json:"http_port"`
	GRPCPort      int               `json:"grpc_port"`
	Status        string            `json:"status"`
	LastHeartbeat string            `json:"last_heartbeat"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// BaseURL return the HTTP base of the service
func (s *ServiceInfo) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.HTTPPort)
}

// ServiceDiscovery looks services up in the ecosystem's redis-backed
// discovery system
type ServiceDiscovery struct {
	rdb *redis.Client
}

// New connect to the discovery backend
func New(redisURL string) (*ServiceDiscovery, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not parse redis url")
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, stacktrace.Propagate(err, "could not reach discovery backend")
	}
	return &ServiceDiscovery{rdb: rdb}, nil
}

// Register announce a service under the shared key scheme with the TTL
func (d *ServiceDiscovery) Register(ctx context.Context, info ServiceInfo) error {
	key := serviceKeyPrefix + info.Name
	metadata, err := json.Marshal(info.Metadata)
	if err != nil {
		return stacktrace.Propagate(err, "could not encode metadata for %s", info.Name)
	}
	fields := map[string]interface{}{
		"name":           info.Name,
		"version":        info.Version,
		"host":           info.Host,
		"http_port":      strconv.Itoa(info.HTTPPort),
		"grpc_port":      strconv.Itoa(info.GRPCPort),
		"status":         info.Status,
		"last_heartbeat": time.Now().UTC().Format(time.RFC3339),
		"metadata":       string(metadata),
	}
	if err := d.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return stacktrace.Propagate(err, "could not register service %s", info.Name)
	}
	if err := d.rdb.Expire(ctx, key, serviceTTL).Err(); err != nil {
		return stacktrace.Propagate(err, "could not set ttl for service %s", info.Name)
	}
	log.InfoWithValues("[Discovery]: Service registered", logrus.Fields{
		"Service": info.Name,
		"Host":    info.Host,
		"Status":  info.Status,
	})
	return nil
}

// Get look one service up; a missing registration returns nil without error
func (d *ServiceDiscovery) Get(ctx context.Context, name string) (*ServiceInfo, error) {
	fields, err := d.rdb.HGetAll(ctx, serviceKeyPrefix+name).Result()
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not look up service %s", name)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return infoFromFields(fields), nil
}

// ListServices return every live registration
func (d *ServiceDiscovery) ListServices(ctx context.Context) ([]ServiceInfo, error) {
	keys, err := d.rdb.Keys(ctx, serviceKeyPrefix+"*").Result()
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not scan service registrations")
	}
	out := make([]ServiceInfo, 0, len(keys))
	for _, key := range keys {
		fields, err := d.rdb.HGetAll(ctx, key).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		out = append(out, *infoFromFields(fields))
	}
	return out, nil
}

// Deregister drop a registration
func (d *ServiceDiscovery) Deregister(ctx context.Context, name string) error {
	return d.rdb.Del(ctx, serviceKeyPrefix+name).Err()
}

// Close release the redis connection
func (d *ServiceDiscovery) Close() error {
	return d.rdb.Close()
}

func infoFromFields(fields map[string]string) *ServiceInfo {
	info := &ServiceInfo{
		Name:          fields["name"],
		Version:       fields["version"],
		Host:          fields["host"],
		Status:        fields["status"],
		LastHeartbeat: fields["last_heartbeat"],
	}
	info.HTTPPort, _ = strconv.Atoi(fields["http_port"])
	info.GRPCPort, _ = strconv.Atoi(fields["grpc_port"])
	if raw := fields["metadata"]; raw != "" && raw != "null" {
		metadata := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &metadata); err == nil {
			info.Metadata = metadata
		}
	}
	return info
}
