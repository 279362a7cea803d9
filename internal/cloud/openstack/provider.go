// Package openstack implements cloud.Provider and cloud.Backend on top of
// gophercloud. Keystone validates credentials; nova, neutron, cinder and
// glance serve the listings.
package openstack

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/tokens"

	"github.com/alecgard/cloudtally/internal/cloud"
)

// Options locate the identity service and the project every Session is
// scoped to.
type Options struct {
	AuthURL         string
	ProjectName     string
	Region          string
	UserDomainID    string
	ProjectDomainID string
	Insecure        bool
	Timeout         time.Duration
}

// Provider authenticates principals against keystone.
type Provider struct {
	opts Options
}

// NewProvider creates a Provider for the identity endpoint in opts.
func NewProvider(opts Options) *Provider {
	if opts.UserDomainID == "" {
		opts.UserDomainID = "default"
	}
	if opts.ProjectDomainID == "" {
		opts.ProjectDomainID = "default"
	}
	return &Provider{opts: opts}
}

// Authenticate exchanges cred for a keystone token and returns a Session
// bound to the configured project and region. The token is issued by the
// backend before the Session is handed out, so a bad credential never reaches
// the listing calls.
func (p *Provider) Authenticate(ctx context.Context, cred cloud.Credential) (*cloud.Session, error) {
	if err := cred.Validate(); err != nil {
		return nil, p.fail(cred.Principal, err)
	}

	client, err := openstack.NewClient(p.opts.AuthURL)
	if err != nil {
		return nil, p.fail(cred.Principal, err)
	}
	client.HTTPClient = p.httpClient()

	authOpts := gophercloud.AuthOptions{
		IdentityEndpoint: p.opts.AuthURL,
		Username:         cred.Principal,
		Password:         cred.Secret,
		DomainID:         p.opts.UserDomainID,
	}
	if p.opts.ProjectName != "" {
		authOpts.Scope = &gophercloud.AuthScope{
			ProjectName: p.opts.ProjectName,
			DomainID:    p.opts.ProjectDomainID,
		}
	}

	if err := openstack.Authenticate(ctx, client, authOpts); err != nil {
		return nil, p.fail(cred.Principal, err)
	}
	if client.Token() == "" {
		return nil, p.fail(cred.Principal, errors.New("identity service returned no token"))
	}

	slog.Info("backend session opened", "principal", cred.Principal, "project", p.opts.ProjectName, "region", p.opts.Region)

	return &cloud.Session{
		Principal: cred.Principal,
		Project:   p.opts.ProjectName,
		Region:    p.opts.Region,
		ExpiresAt: tokenExpiry(client),
		Backend:   &Backend{client: client, region: p.opts.Region},
	}, nil
}

func (p *Provider) fail(principal string, cause error) error {
	authErr := cloud.NewAuthError(principal, cause)
	slog.Error("backend authentication failed", "principal", principal, "auth_url", p.opts.AuthURL, "error", authErr.Diagnostic())
	return authErr
}

func (p *Provider) httpClient() http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if p.opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return http.Client{Transport: transport, Timeout: p.opts.Timeout}
}

// tokenExpiry reads the expiry of a v3 token, or returns the zero time when
// the identity service did not report one.
func tokenExpiry(client *gophercloud.ProviderClient) time.Time {
	result, ok := client.GetAuthResult().(tokens.CreateResult)
	if !ok {
		return time.Time{}
	}
	token, err := result.ExtractToken()
	if err != nil {
		return time.Time{}
	}
	return token.ExpiresAt
}
