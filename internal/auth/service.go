package auth

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Service bundles the auth components wired over one Store.
type Service struct {
	Catalog     *CatalogService
	Claims      *ClaimService
	Roles       *RoleService
	Memberships *MembershipService
	Resolver    *Resolver
	Guard       *Guard
	Provisioner *Provisioner
}

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures the services built by NewService and NewProvisioner.
type Option func(*options)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewService wires every auth component over store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	catalog, err := NewCatalogService(store)
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver(store)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	catalog.now = o.now
	return &Service{
		Catalog:     catalog,
		Claims:      &ClaimService{store: store},
		Roles:       &RoleService{store: store, now: o.now},
		Memberships: &MembershipService{store: store, now: o.now},
		Resolver:    resolver,
		Guard:       &Guard{resolver: resolver},
		Provisioner: &Provisioner{store: store, logger: o.logger, now: o.now},
	}, nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func requireIDs(names string, values ...*string) error {
	for _, v := range values {
		*v = strings.TrimSpace(*v)
		if *v == "" {
			return invalidInputf("missing %s", names)
		}
	}
	return nil
}
