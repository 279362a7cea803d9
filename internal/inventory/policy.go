package inventory

// Kind names one resource collection fetched from the backend.
type Kind string

const (
	KindFlavors   Kind = "flavors"
	KindInstances Kind = "instances"
	KindNetworks  Kind = "networks"
	KindVolumes   Kind = "volumes"
	KindImages    Kind = "images"
	KindKeypairs  Kind = "keypairs"
)

// Policy decides what a failed fetch does to the aggregation.
type Policy int

const (
	// Fatal aborts the whole aggregation.
	Fatal Policy = iota + 1
	// DegradeToEmpty replaces the collection with an empty one.
	DegradeToEmpty
)

func (p Policy) String() string {
	switch p {
	case Fatal:
		return "fatal"
	case DegradeToEmpty:
		return "degrade_to_empty"
	default:
		return "unknown"
	}
}

// policies is the failure policy of every kind. Flavors and instances are
// needed for cost attribution and networks are part of the minimum useful
// inventory; the rest are optional.
var policies = map[Kind]Policy{
	KindFlavors:   Fatal,
	KindInstances: Fatal,
	KindNetworks:  Fatal,
	KindVolumes:   DegradeToEmpty,
	KindImages:    DegradeToEmpty,
	KindKeypairs:  DegradeToEmpty,
}

// PolicyFor returns the failure policy of k. Unlisted kinds are fatal.
func PolicyFor(k Kind) Policy {
	if p, ok := policies[k]; ok {
		return p
	}
	return Fatal
}

// Kinds returns every kind in fetch order.
func Kinds() []Kind {
	return []Kind{KindFlavors, KindInstances, KindNetworks, KindVolumes, KindImages, KindKeypairs}
}
