package inventory

import (
	"time"

	"github.com/alecgard/cloudtally/internal/pricing"
)

// Snapshot is the composite, cost-annotated inventory answered to one
// request. It is built fresh per aggregation and not modified afterwards.
type Snapshot struct {
	Instances   []Instance  `json:"instances"`
	Networks    []Network   `json:"networks"`
	Volumes     []Volume    `json:"volumes"`
	Images      []Image     `json:"images"`
	Keypairs    []Keypair   `json:"keypairs"`
	PricingInfo PricingInfo `json:"pricing_info"`

	// Degraded lists the kinds that failed and were replaced by empty
	// collections.
	Degraded    []Kind    `json:"degraded,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// PricingInfo summarises fleet cost alongside the rates used.
type PricingInfo struct {
	TotalCost float64            `json:"total_cost"`
	Currency  string             `json:"currency"`
	Rates     map[string]float64 `json:"rates"`
}

type Instance struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	Addresses map[string]any    `json:"addresses"`
	Flavor    string            `json:"flavor"`
	Created   string            `json:"created"`
	Pricing   pricing.Breakdown `json:"pricing"`
}

type Network struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	AdminStateUp bool     `json:"admin_state_up"`
	Shared       bool     `json:"shared"`
	Subnets      []string `json:"subnets"`
	ProjectID    string   `json:"project_id,omitempty"`
}

type Volume struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Size        int          `json:"size"`
	Status      string       `json:"status"`
	CreatedAt   *time.Time   `json:"created_at"`
	VolumeType  string       `json:"volume_type"`
	Bootable    string       `json:"bootable"`
	Attachments []Attachment `json:"attachments"`
}

type Attachment struct {
	ServerID string `json:"server_id"`
	Device   string `json:"device"`
}

type Image struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Size      int64      `json:"size"`
	MinDisk   int        `json:"min_disk"`
	MinRAM    int        `json:"min_ram"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type Keypair struct {
	Name        string     `json:"name"`
	Fingerprint string     `json:"fingerprint"`
	PublicKey   string     `json:"public_key"`
	CreatedAt   *time.Time `json:"created_at"`
}
