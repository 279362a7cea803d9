package inventory

import (
	"log/slog"
	"time"

	"github.com/alecgard/cloudtally/internal/cloud"
	"github.com/alecgard/cloudtally/internal/pricing"
)

const (
	unknownFlavor = "unknown"
	unnamedVolume = "Unnamed Volume"
	unnamedImage  = "Unnamed Image"
)

// normalizeAll converts every record independently. A record that fails is
// logged, reported to onDrop and dropped; its siblings are kept.
func normalizeAll[R, N any](kind Kind, records []R, fn func(R) (N, error), onDrop func(Kind)) []N {
	out := make([]N, 0, len(records))
	for _, rec := range records {
		n, err := fn(rec)
		if err != nil {
			slog.Warn("dropping malformed record", "kind", kind, "error", err)
			if onDrop != nil {
				onDrop(kind)
			}
			continue
		}
		out = append(out, n)
	}
	return out
}

// flavorLookup resolves flavor IDs to names. It is built before instance
// processing and only read afterwards.
type flavorLookup map[string]cloud.Flavor

func newFlavorLookup(flavors []cloud.Flavor) flavorLookup {
	lookup := make(flavorLookup, len(flavors))
	for _, f := range flavors {
		lookup[f.ID] = f
	}
	return lookup
}

// name returns the flavor name for id, or "unknown".
func (l flavorLookup) name(id string) string {
	if f, ok := l[id]; ok && f.Name != "" {
		return f.Name
	}
	return unknownFlavor
}

func normalizeInstance(s cloud.Server, flavors flavorLookup, table *pricing.Table, now time.Time) (Instance, error) {
	if s.ID == "" {
		return Instance{}, &NormalizationError{Kind: KindInstances, Ref: s.Name, Reason: "missing id"}
	}

	flavor := flavors.name(s.FlavorID)
	cost, err := pricing.Compute(s.Created, flavor, table, now)
	if err != nil {
		slog.Warn("instance cost unavailable", "instance_id", s.ID, "error", err)
	} else if cost.Clamped {
		slog.Warn("instance created after evaluation time, uptime clamped to zero",
			"instance_id", s.ID, "created", s.Created, "now", now)
	}

	addresses := s.Addresses
	if addresses == nil {
		addresses = map[string]any{}
	}

	return Instance{
		ID:        s.ID,
		Name:      s.Name,
		Status:    s.Status,
		Addresses: addresses,
		Flavor:    flavor,
		Created:   s.Created,
		Pricing:   cost,
	}, nil
}

func normalizeNetwork(n cloud.Network) (Network, error) {
	if n.ID == "" {
		return Network{}, &NormalizationError{Kind: KindNetworks, Ref: n.Name, Reason: "missing id"}
	}
	subnets := n.Subnets
	if subnets == nil {
		subnets = []string{}
	}
	return Network{
		ID:           n.ID,
		Name:         n.Name,
		Status:       n.Status,
		AdminStateUp: n.AdminStateUp,
		Shared:       n.Shared,
		Subnets:      subnets,
		ProjectID:    n.ProjectID,
	}, nil
}

func normalizeVolume(v cloud.Volume) (Volume, error) {
	if v.ID == "" {
		return Volume{}, &NormalizationError{Kind: KindVolumes, Ref: v.Name, Reason: "missing id"}
	}
	if v.Size < 0 {
		return Volume{}, &NormalizationError{Kind: KindVolumes, Ref: v.ID, Reason: "negative size"}
	}

	name := v.Name
	if name == "" {
		name = unnamedVolume
	}

	attachments := make([]Attachment, 0, len(v.Attachments))
	for _, att := range v.Attachments {
		attachments = append(attachments, Attachment{ServerID: att.ServerID, Device: att.Device})
	}

	return Volume{
		ID:          v.ID,
		Name:        name,
		Size:        v.Size,
		Status:      v.Status,
		CreatedAt:   optionalTime(v.CreatedAt),
		VolumeType:  v.VolumeType,
		Bootable:    v.Bootable,
		Attachments: attachments,
	}, nil
}

func normalizeImage(img cloud.Image) (Image, error) {
	if img.ID == "" {
		return Image{}, &NormalizationError{Kind: KindImages, Ref: img.Name, Reason: "missing id"}
	}

	name := img.Name
	if name == "" {
		name = unnamedImage
	}

	return Image{
		ID:        img.ID,
		Name:      name,
		Status:    img.Status,
		Size:      max(img.SizeBytes, 0),
		MinDisk:   max(img.MinDisk, 0),
		MinRAM:    max(img.MinRAM, 0),
		CreatedAt: optionalTime(img.CreatedAt),
		UpdatedAt: optionalTime(img.UpdatedAt),
	}, nil
}

func normalizeKeypair(k cloud.Keypair) (Keypair, error) {
	if k.Name == "" {
		return Keypair{}, &NormalizationError{Kind: KindKeypairs, Ref: k.Fingerprint, Reason: "missing name"}
	}
	return Keypair{
		Name:        k.Name,
		Fingerprint: k.Fingerprint,
		PublicKey:   k.PublicKey,
		CreatedAt:   optionalTime(k.CreatedAt),
	}, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
