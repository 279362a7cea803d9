// Package cloud defines the capability surface cloudtally consumes from the
// backend cloud control plane: authenticating a principal into a Session and
// listing raw resource records through that Session.
package cloud

import (
	"context"
	"errors"
	"time"
)

// Credential is a principal/secret pair exchanged once for a Session. It is
// never persisted.
type Credential struct {
	Principal string
	Secret    string
}

// Validate checks that both halves of the credential are present. The backend
// is authoritative for everything else.
func (c Credential) Validate() error {
	if c.Principal == "" || c.Secret == "" {
		return errors.New("principal and secret are required")
	}
	return nil
}

// Session is an authenticated handle bound to one project and region. It is
// owned by the request that created it and discarded afterwards.
type Session struct {
	Principal string
	Project   string
	Region    string
	ExpiresAt time.Time
	Backend   Backend
}

// Provider exchanges credentials for a validated Session.
type Provider interface {
	// Authenticate returns a Session whose token has already been confirmed
	// live by the backend. Every failure is reported as *AuthError.
	Authenticate(ctx context.Context, cred Credential) (*Session, error)
}

// Backend lists raw resource records. Each method is an independent remote
// call with its own failure domain.
type Backend interface {
	ListFlavors(ctx context.Context) ([]Flavor, error)
	ListServers(ctx context.Context) ([]Server, error)
	ListNetworks(ctx context.Context) ([]Network, error)
	ListVolumes(ctx context.Context) ([]Volume, error)
	ListImages(ctx context.Context) ([]Image, error)
	ListKeypairs(ctx context.Context) ([]Keypair, error)
}

// Flavor is a compute sizing class.
type Flavor struct {
	ID    string
	Name  string
	VCPUs int
	RAM   int
	Disk  int
}

// Server is a compute instance as reported by the compute service. Created is
// kept in its wire form so that a malformed value can be priced as unknown
// instead of failing the whole listing.
type Server struct {
	ID        string
	Name      string
	Status    string
	Addresses map[string]any
	FlavorID  string
	Created   string
}

// Network is a tenant network.
type Network struct {
	ID           string
	Name         string
	Status       string
	AdminStateUp bool
	Shared       bool
	Subnets      []string
	ProjectID    string
}

// VolumeAttachment links a volume to a server.
type VolumeAttachment struct {
	ServerID string
	Device   string
}

// Volume is a block storage volume.
type Volume struct {
	ID          string
	Name        string
	Status      string
	Size        int
	VolumeType  string
	Bootable    string
	CreatedAt   time.Time
	Attachments []VolumeAttachment
}

// Image is a bootable image.
type Image struct {
	ID        string
	Name      string
	Status    string
	SizeBytes int64
	MinDisk   int
	MinRAM    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Keypair is an SSH keypair registered with the compute service.
type Keypair struct {
	Name        string
	Fingerprint string
	PublicKey   string
	CreatedAt   time.Time
}
