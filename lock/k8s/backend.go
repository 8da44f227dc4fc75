// Package k8s implements lock.Backend on coordination/v1 Lease objects.
// Each lock name maps to one Lease in the configured namespace; the
// holder identity is the owner token and expiry is RenewTime plus
// LeaseDurationSeconds.
package k8s

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/lock"
)

// Compile-time check.
var _ lock.Backend = (*Backend)(nil)

const (
	defaultLeasePrefix = "foundatio-lock-"
	annotationLockName = "foundatio.io/lock-name"
	maxLeaseNameLen    = 253
)

// Option configures the Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithLeasePrefix sets the Lease object name prefix.
func WithLeasePrefix(p string) Option {
	return func(b *Backend) { b.leasePrefix = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// Backend stores leases as Kubernetes Lease objects.
type Backend struct {
	client      kubernetes.Interface
	namespace   string
	leasePrefix string
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a backend that keeps Leases in namespace.
func New(client kubernetes.Interface, namespace string, opts ...Option) *Backend {
	b := &Backend{
		client:      client,
		namespace:   namespace,
		leasePrefix: defaultLeasePrefix,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// LeaseName maps a lock name to a valid Lease object name. Names are
// sanitized to DNS-1123 and suffixed with a hash of the original so
// distinct lock names never collide.
func (b *Backend) LeaseName(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	suffix := fmt.Sprintf("-%08x", h.Sum32())

	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('-')
		}
	}
	body := strings.Trim(sb.String(), "-.")
	if limit := maxLeaseNameLen - len(b.leasePrefix) - len(suffix); len(body) > limit {
		body = body[:limit]
	}
	return b.leasePrefix + body + suffix
}

// TryAcquire implements lock.Backend.
func (b *Backend) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	leaseName := b.LeaseName(name)
	now := metav1.NewMicroTime(b.now().UTC())
	ttlSec := ttlSeconds(ttl)
	leases := b.client.CoordinationV1().Leases(b.namespace)

	existing, err := leases.Get(ctx, leaseName, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		l := &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{
				Name:        leaseName,
				Namespace:   b.namespace,
				Annotations: map[string]string{annotationLockName: name},
			},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &owner,
				LeaseDurationSeconds: &ttlSec,
				AcquireTime:          &now,
				RenewTime:            &now,
			},
		}
		if _, err := leases.Create(ctx, l, metav1.CreateOptions{}); err != nil {
			if errors.IsAlreadyExists(err) {
				return false, nil
			}
			return false, fmt.Errorf("foundatio/lock/k8s: create lease: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("foundatio/lock/k8s: get lease: %w", err)
	}

	if !b.expired(existing) {
		return false, nil
	}

	existing.Spec.HolderIdentity = &owner
	existing.Spec.LeaseDurationSeconds = &ttlSec
	existing.Spec.AcquireTime = &now
	existing.Spec.RenewTime = &now
	if _, err := leases.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		if errors.IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("foundatio/lock/k8s: update lease (acquire): %w", err)
	}
	return true, nil
}

// Release implements lock.Backend.
func (b *Backend) Release(ctx context.Context, name, owner string) error {
	leaseName := b.LeaseName(name)
	leases := b.client.CoordinationV1().Leases(b.namespace)

	existing, err := leases.Get(ctx, leaseName, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("foundatio/lock/k8s: release get lease: %w", err)
	}
	if !heldBy(existing, owner) {
		return nil
	}

	err = leases.Delete(ctx, leaseName, metav1.DeleteOptions{})
	if err != nil && !errors.IsNotFound(err) {
		return fmt.Errorf("foundatio/lock/k8s: delete lease: %w", err)
	}
	return nil
}

// Renew implements lock.Backend.
func (b *Backend) Renew(ctx context.Context, name, owner string, ttl time.Duration) error {
	leaseName := b.LeaseName(name)
	leases := b.client.CoordinationV1().Leases(b.namespace)

	existing, err := leases.Get(ctx, leaseName, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		return foundatio.ErrLockNotHeld
	}
	if err != nil {
		return fmt.Errorf("foundatio/lock/k8s: renew get lease: %w", err)
	}
	if !heldBy(existing, owner) || b.expired(existing) {
		return foundatio.ErrLockNotHeld
	}

	now := metav1.NewMicroTime(b.now().UTC())
	ttlSec := ttlSeconds(ttl)
	existing.Spec.LeaseDurationSeconds = &ttlSec
	existing.Spec.RenewTime = &now
	if _, err := leases.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		if errors.IsConflict(err) {
			return foundatio.ErrLockNotHeld
		}
		return fmt.Errorf("foundatio/lock/k8s: renew update lease: %w", err)
	}
	return nil
}

// IsLocked implements lock.Backend.
func (b *Backend) IsLocked(ctx context.Context, name string) (bool, error) {
	existing, err := b.client.CoordinationV1().Leases(b.namespace).Get(ctx, b.LeaseName(name), metav1.GetOptions{})
	if errors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("foundatio/lock/k8s: get lease: %w", err)
	}
	return existing.Spec.HolderIdentity != nil && !b.expired(existing), nil
}

// expired reports whether RenewTime + LeaseDurationSeconds is not after now.
func (b *Backend) expired(l *coordinationv1.Lease) bool {
	if l.Spec.RenewTime == nil || l.Spec.LeaseDurationSeconds == nil {
		return true
	}
	until := l.Spec.RenewTime.Add(time.Duration(*l.Spec.LeaseDurationSeconds) * time.Second)
	return !until.After(b.now())
}

func heldBy(l *coordinationv1.Lease, owner string) bool {
	return l.Spec.HolderIdentity != nil && *l.Spec.HolderIdentity == owner
}

// ttlSeconds rounds ttl up to whole seconds, minimum one.
func ttlSeconds(ttl time.Duration) int32 {
	s := int32(math.Ceil(ttl.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
