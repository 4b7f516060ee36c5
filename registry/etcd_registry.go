package registry

import (
	"context"
	"encoding/json"
	"path"
	"sync"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// DefaultPrefix is the etcd key prefix of all endpoints.
//
//	Key:   /pbtcp/{ServiceName}/{host:port}
//	Value: JSON-encoded Endpoint
const DefaultPrefix = "/pbtcp"

// EtcdRegistry keeps endpoints in etcd v3 under TTL leases, so an endpoint
// whose server died disappears on its own once the lease expires.
type EtcdRegistry struct {
	client *clientv3.Client
	prefix string
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key -> lease
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		Logger:    logger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "registry: connect to etcd")
	}
	return NewEtcdRegistryFromClient(c, logger), nil
}

// NewEtcdRegistryFromClient wraps an existing etcd client.
func NewEtcdRegistryFromClient(c *clientv3.Client, logger *zap.Logger) *EtcdRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdRegistry{
		client: c,
		prefix: DefaultPrefix,
		logger: logger,
		leases: make(map[string]clientv3.LeaseID),
	}
}

func (r *EtcdRegistry) servicePrefix(serviceName string) string {
	return path.Join(r.prefix, serviceName) + "/"
}

func (r *EtcdRegistry) key(serviceName, addr string) (string, error) {
	hostPort, err := HostPort(addr)
	if err != nil {
		return "", err
	}
	return r.servicePrefix(serviceName) + hostPort, nil
}

// Register grants a lease of ttl seconds, stores ep under it and keeps the
// lease alive in the background.
func (r *EtcdRegistry) Register(ctx context.Context, ep Endpoint, ttl int64) error {
	key, err := r.key(ep.ServiceName, ep.Addr)
	if err != nil {
		return err
	}
	val, err := json.Marshal(ep)
	if err != nil {
		return errors.Wrap(err, "registry: encode endpoint")
	}

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errors.Wrap(err, "registry: grant lease")
	}
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errors.Wrapf(err, "registry: put %s", key)
	}

	// The lease must outlive the registering call.
	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return errors.Wrap(err, "registry: keep lease alive")
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keep-alive stopped", zap.String("key", key))
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()

	r.logger.Info("endpoint registered", zap.String("key", key), zap.Int64("ttl", ttl))
	return nil
}

// Deregister deletes the endpoint and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName, addr string) error {
	key, err := r.key(serviceName, addr)
	if err != nil {
		return err
	}
	if _, err := r.client.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "registry: delete %s", key)
	}

	r.mu.Lock()
	id, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		if _, err := r.client.Revoke(ctx, id); err != nil {
			return errors.Wrapf(err, "registry: revoke lease of %s", key)
		}
	}
	r.logger.Info("endpoint deregistered", zap.String("key", key))
	return nil
}

// Discover lists the endpoints currently stored for serviceName. Entries
// that fail to decode are skipped.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, r.servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrapf(err, "registry: list %s", serviceName)
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			r.logger.Warn("skipping malformed endpoint", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Watch re-lists the service on every change under its prefix.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, r.servicePrefix(serviceName), clientv3.WithPrefix()) {
			endpoints, err := r.Discover(ctx, serviceName)
			if err != nil {
				r.logger.Warn("watch: list failed", zap.String("service", serviceName), zap.Error(err))
				continue
			}
			select {
			case ch <- endpoints:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
