// Package cloudtest provides in-memory cloud.Provider and cloud.Backend
// implementations for tests.
package cloudtest

import (
	"context"
	"sync"
	"time"

	"github.com/alecgard/cloudtally/internal/cloud"
)

// Backend serves fixed records. A non-nil error for a kind makes that listing
// fail; a non-zero delay makes it block until the delay elapses or the context
// is done.
type Backend struct {
	Flavors  []cloud.Flavor
	Servers  []cloud.Server
	Networks []cloud.Network
	Volumes  []cloud.Volume
	Images   []cloud.Image
	Keypairs []cloud.Keypair

	FlavorsErr  error
	ServersErr  error
	NetworksErr error
	VolumesErr  error
	ImagesErr   error
	KeypairsErr error

	// Delay applies to every listing.
	Delay time.Duration

	mu    sync.Mutex
	calls map[string]int
}

// Calls returns how many times the named listing ran.
func (b *Backend) Calls(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *Backend) track(ctx context.Context, name string) error {
	b.mu.Lock()
	if b.calls == nil {
		b.calls = make(map[string]int)
	}
	b.calls[name]++
	b.mu.Unlock()

	if b.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(b.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func list[T any](ctx context.Context, b *Backend, name string, items []T, err error) ([]T, error) {
	if cerr := b.track(ctx, name); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (b *Backend) ListFlavors(ctx context.Context) ([]cloud.Flavor, error) {
	return list(ctx, b, "flavors", b.Flavors, b.FlavorsErr)
}

func (b *Backend) ListServers(ctx context.Context) ([]cloud.Server, error) {
	return list(ctx, b, "servers", b.Servers, b.ServersErr)
}

func (b *Backend) ListNetworks(ctx context.Context) ([]cloud.Network, error) {
	return list(ctx, b, "networks", b.Networks, b.NetworksErr)
}

func (b *Backend) ListVolumes(ctx context.Context) ([]cloud.Volume, error) {
	return list(ctx, b, "volumes", b.Volumes, b.VolumesErr)
}

func (b *Backend) ListImages(ctx context.Context) ([]cloud.Image, error) {
	return list(ctx, b, "images", b.Images, b.ImagesErr)
}

func (b *Backend) ListKeypairs(ctx context.Context) ([]cloud.Keypair, error) {
	return list(ctx, b, "keypairs", b.Keypairs, b.KeypairsErr)
}

// Provider accepts exactly the credentials in Accounts and hands out Sessions
// over Backend.
type Provider struct {
	Accounts map[string]string
	Backend  cloud.Backend

	mu       sync.Mutex
	attempts int
}

// Attempts returns the number of Authenticate calls.
func (p *Provider) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Authenticate implements cloud.Provider.
func (p *Provider) Authenticate(_ context.Context, cred cloud.Credential) (*cloud.Session, error) {
	p.mu.Lock()
	p.attempts++
	p.mu.Unlock()

	if err := cred.Validate(); err != nil {
		return nil, cloud.NewAuthError(cred.Principal, err)
	}
	if secret, ok := p.Accounts[cred.Principal]; !ok || secret != cred.Secret {
		return nil, cloud.NewAuthError(cred.Principal, nil)
	}
	return &cloud.Session{
		Principal: cred.Principal,
		Project:   "demo",
		Region:    "RegionOne",
		ExpiresAt: time.Now().Add(time.Hour),
		Backend:   p.Backend,
	}, nil
}

// Healthy returns a Backend with one record of every kind, two servers on
// known flavors.
func Healthy(now time.Time) *Backend {
	created := now.Add(-2 * time.Hour).UTC().Format("2006-01-02T15:04:05Z")
	return &Backend{
		Flavors: []cloud.Flavor{
			{ID: "1", Name: "m1.tiny", VCPUs: 1, RAM: 512, Disk: 1},
			{ID: "2", Name: "m1.small", VCPUs: 1, RAM: 2048, Disk: 20},
		},
		Servers: []cloud.Server{
			{ID: "srv-1", Name: "web-1", Status: "ACTIVE", FlavorID: "2", Created: created,
				Addresses: map[string]any{"private": []any{map[string]any{"addr": "10.0.0.5"}}}},
			{ID: "srv-2", Name: "db-1", Status: "ACTIVE", FlavorID: "1", Created: created},
		},
		Networks: []cloud.Network{
			{ID: "net-1", Name: "private", Status: "ACTIVE", AdminStateUp: true, Subnets: []string{"sub-1"}},
		},
		Volumes: []cloud.Volume{
			{ID: "vol-1", Name: "data", Status: "in-use", Size: 10, Bootable: "false",
				Attachments: []cloud.VolumeAttachment{{ServerID: "srv-2", Device: "/dev/vdb"}}},
		},
		Images: []cloud.Image{
			{ID: "img-1", Name: "cirros", Status: "active", SizeBytes: 12716032, MinDisk: 1, MinRAM: 64},
		},
		Keypairs: []cloud.Keypair{
			{Name: "ops", Fingerprint: "aa:bb:cc", PublicKey: "ssh-ed25519 AAAA ops"},
		},
	}
}
