package openstack

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/keypairs"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/v2/openstack/image/v2/images"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/networks"

	"github.com/alecgard/cloudtally/internal/cloud"
)

// Backend lists resources through an authenticated provider client. Service
// clients are resolved from the catalog per call, so a service missing from
// the catalog only fails its own listings.
type Backend struct {
	client *gophercloud.ProviderClient
	region string
}

func (b *Backend) endpoint() gophercloud.EndpointOpts {
	return gophercloud.EndpointOpts{Region: b.region}
}

func (b *Backend) compute() (*gophercloud.ServiceClient, error) {
	c, err := openstack.NewComputeV2(b.client, b.endpoint())
	if err != nil {
		return nil, fmt.Errorf("compute endpoint: %w", err)
	}
	return c, nil
}

func (b *Backend) ListFlavors(ctx context.Context) ([]cloud.Flavor, error) {
	c, err := b.compute()
	if err != nil {
		return nil, err
	}
	return listFlavors(ctx, c)
}

func (b *Backend) ListServers(ctx context.Context) ([]cloud.Server, error) {
	c, err := b.compute()
	if err != nil {
		return nil, err
	}
	return listServers(ctx, c)
}

func (b *Backend) ListKeypairs(ctx context.Context) ([]cloud.Keypair, error) {
	c, err := b.compute()
	if err != nil {
		return nil, err
	}
	return listKeypairs(ctx, c)
}

func (b *Backend) ListNetworks(ctx context.Context) ([]cloud.Network, error) {
	c, err := openstack.NewNetworkV2(b.client, b.endpoint())
	if err != nil {
		return nil, fmt.Errorf("network endpoint: %w", err)
	}
	return listNetworks(ctx, c)
}

func (b *Backend) ListVolumes(ctx context.Context) ([]cloud.Volume, error) {
	c, err := openstack.NewBlockStorageV3(b.client, b.endpoint())
	if err != nil {
		return nil, fmt.Errorf("block storage endpoint: %w", err)
	}
	return listVolumes(ctx, c)
}

func (b *Backend) ListImages(ctx context.Context) ([]cloud.Image, error) {
	c, err := openstack.NewImageV2(b.client, b.endpoint())
	if err != nil {
		return nil, fmt.Errorf("image endpoint: %w", err)
	}
	return listImages(ctx, c)
}

func listFlavors(ctx context.Context, c *gophercloud.ServiceClient) ([]cloud.Flavor, error) {
	pages, err := flavors.ListDetail(c, flavors.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing flavors: %w", err)
	}
	all, err := flavors.ExtractFlavors(pages)
	if err != nil {
		return nil, fmt.Errorf("decoding flavors: %w", err)
	}
	out := make([]cloud.Flavor, 0, len(all))
	for _, f := range all {
		out = append(out, cloud.Flavor{ID: f.ID, Name: f.Name, VCPUs: f.VCPUs, RAM: f.RAM, Disk: f.Disk})
	}
	return out, nil
}

// serverRecord decodes the fields cloudtally reads from a nova server. The
// creation timestamp and the flavor reference are kept loose so one odd
// record cannot fail the page.
type serverRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Addresses map[string]any `json:"addresses"`
	Flavor    map[string]any `json:"flavor"`
	Created   string         `json:"created"`
}

func listServers(ctx context.Context, c *gophercloud.ServiceClient) ([]cloud.Server, error) {
	pages, err := servers.List(c, servers.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	var records []serverRecord
	if err := servers.ExtractServersInto(pages, &records); err != nil {
		return nil, fmt.Errorf("decoding servers: %w", err)
	}
	out := make([]cloud.Server, 0, len(records))
	for _, r := range records {
		out = append(out, convertServer(r))
	}
	return out, nil
}

func convertServer(r serverRecord) cloud.Server {
	return cloud.Server{
		ID:        r.ID,
		Name:      r.Name,
		Status:    r.Status,
		Addresses: r.Addresses,
		FlavorID:  flavorRef(r.Flavor),
		Created:   r.Created,
	}
}

// flavorRef returns the flavor ID of a server. Newer compute microversions
// embed the flavor instead of linking it and only carry its original name.
func flavorRef(flavor map[string]any) string {
	for _, key := range []string{"id", "original_name"} {
		if s, ok := flavor[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func listKeypairs(ctx context.Context, c *gophercloud.ServiceClient) ([]cloud.Keypair, error) {
	pages, err := keypairs.List(c, keypairs.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing keypairs: %w", err)
	}
	all, err := keypairs.ExtractKeyPairs(pages)
	if err != nil {
		return nil, fmt.Errorf("decoding keypairs: %w", err)
	}
	out := make([]cloud.Keypair, 0, len(all))
	for _, k := range all {
		out = append(out, cloud.Keypair{Name: k.Name, Fingerprint: k.Fingerprint, PublicKey: k.PublicKey})
	}
	return out, nil
}

func listNetworks(ctx context.Context, c *gophercloud.ServiceClient) ([]cloud.Network, error) {
	pages, err := networks.List(c, networks.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing networks: %w", err)
	}
	all, err := networks.ExtractNetworks(pages)
	if err != nil {
		return nil, fmt.Errorf("decoding networks: %w", err)
	}
	out := make([]cloud.Network, 0, len(all))
	for _, n := range all {
		out = append(out, convertNetwork(n))
	}
	return out, nil
}

func convertNetwork(n networks.Network) cloud.Network {
	project := n.ProjectID
	if project == "" {
		project = n.TenantID
	}
	return cloud.Network{
		ID:           n.ID,
		Name:         n.Name,
		Status:       n.Status,
		AdminStateUp: n.AdminStateUp,
		Shared:       n.Shared,
		Subnets:      n.Subnets,
		ProjectID:    project,
	}
}

func listVolumes(ctx context.Context, c *gophercloud.ServiceClient) ([]cloud.Volume, error) {
	pages, err := volumes.List(c, volumes.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing volumes: %w", err)
	}
	all, err := volumes.ExtractVolumes(pages)
	if err != nil {
		return nil, fmt.Errorf("decoding volumes: %w", err)
	}
	out := make([]cloud.Volume, 0, len(all))
	for _, v := range all {
		out = append(out, convertVolume(v))
	}
	return out, nil
}

func convertVolume(v volumes.Volume) cloud.Volume {
	attachments := make([]cloud.VolumeAttachment, 0, len(v.Attachments))
	for _, a := range v.Attachments {
		attachments = append(attachments, cloud.VolumeAttachment{ServerID: a.ServerID, Device: a.Device})
	}
	return cloud.Volume{
		ID:          v.ID,
		Name:        v.Name,
		Status:      v.Status,
		Size:        v.Size,
		VolumeType:  v.VolumeType,
		Bootable:    v.Bootable,
		CreatedAt:   v.CreatedAt,
		Attachments: attachments,
	}
}

func listImages(ctx context.Context, c *gophercloud.ServiceClient) ([]cloud.Image, error) {
	pages, err := images.List(c, images.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	all, err := images.ExtractImages(pages)
	if err != nil {
		return nil, fmt.Errorf("decoding images: %w", err)
	}
	out := make([]cloud.Image, 0, len(all))
	for _, img := range all {
		out = append(out, convertImage(img))
	}
	return out, nil
}

func convertImage(img images.Image) cloud.Image {
	return cloud.Image{
		ID:        img.ID,
		Name:      img.Name,
		Status:    string(img.Status),
		SizeBytes: img.SizeBytes,
		MinDisk:   img.MinDiskGigabytes,
		MinRAM:    img.MinRAMMegabytes,
		CreatedAt: img.CreatedAt,
		UpdatedAt: img.UpdatedAt,
	}
}
