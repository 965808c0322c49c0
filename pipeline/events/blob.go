package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

// NoMAC stands in for the MAC of a blob path without a macAddress segment
const NoMAC = "none"

const resourceIDSegment = "resourceId="

// BlobIdentity identifies one hourly flow-log blob of one network security group.
// Blob paths look like
//
//	resourceId=/SUBSCRIPTIONS/{sub}/RESOURCEGROUPS/{rg}/PROVIDERS/MICROSOFT.NETWORK/
//	NETWORKSECURITYGROUPS/{nsg}/y={y}/m={m}/d={d}/h={h}/m={min}/macAddress={mac}/PT1H.json
type BlobIdentity struct {
	Subscription  string
	ResourceGroup string
	NSG           string
	Year          string
	Month         string
	Day           string
	Hour          string
	Minute        string
	MAC           string
}

// ParseBlobPath extracts the identity from a blob path, optionally prefixed by
// its container name
func ParseBlobPath(name string) (BlobIdentity, error) {
	idx := strings.Index(name, resourceIDSegment)
	if idx < 0 {
		return BlobIdentity{}, faults.Parse("events.ParseBlobPath", "blob path %q has no %s segment", name, resourceIDSegment)
	}
	parts := strings.Split(strings.TrimPrefix(name[idx+len(resourceIDSegment):], "/"), "/")

	// SUBSCRIPTIONS sub RESOURCEGROUPS rg PROVIDERS ns type nsg y m d h m [macAddress] [PT1H.json]
	if len(parts) < 13 ||
		!strings.EqualFold(parts[0], "SUBSCRIPTIONS") ||
		!strings.EqualFold(parts[2], "RESOURCEGROUPS") ||
		!strings.EqualFold(parts[4], "PROVIDERS") {
		return BlobIdentity{}, faults.Parse("events.ParseBlobPath", "unexpected blob path layout %q", name)
	}

	id := BlobIdentity{
		Subscription:  parts[1],
		ResourceGroup: parts[3],
		NSG:           parts[7],
		MAC:           NoMAC,
	}
	if id.Subscription == "" || id.ResourceGroup == "" || id.NSG == "" {
		return BlobIdentity{}, faults.Parse("events.ParseBlobPath", "blob path %q has empty resource segments", name)
	}

	timeParts := []struct {
		key string
		dst *string
	}{
		{"y", &id.Year},
		{"m", &id.Month},
		{"d", &id.Day},
		{"h", &id.Hour},
		{"m", &id.Minute},
	}
	for i, tp := range timeParts {
		v, ok := strings.CutPrefix(parts[8+i], tp.key+"=")
		if !ok || v == "" {
			return BlobIdentity{}, faults.Parse("events.ParseBlobPath", "blob path %q: expected %s=<value> in segment %q", name, tp.key, parts[8+i])
		}
		*tp.dst = v
	}

	if len(parts) > 13 {
		if mac, ok := strings.CutPrefix(parts[13], "macAddress="); ok && mac != "" {
			id.MAC = mac
		}
	}

	return id, nil
}

// PartitionKey is the checkpoint table partition of the blob
func (b BlobIdentity) PartitionKey() string {
	return fmt.Sprintf("%s_%s_%s_%s", strings.ReplaceAll(b.Subscription, "-", "_"), b.ResourceGroup, b.NSG, b.MAC)
}

// RowKey is the checkpoint table row of the blob
func (b BlobIdentity) RowKey() string {
	return fmt.Sprintf("%s_%s_%s_%s_%s", b.Year, b.Month, b.Day, b.Hour, b.Minute)
}

// Time returns the UTC hour the blob covers
func (b BlobIdentity) Time() (time.Time, error) {
	t, err := time.Parse("2006-01-02T15:04", fmt.Sprintf("%s-%s-%sT%s:%s", b.Year, b.Month, b.Day, b.Hour, b.Minute))
	if err != nil {
		return time.Time{}, faults.Parse("events.BlobIdentity", "invalid blob time: %v", err)
	}
	return t, nil
}

// String is the checkpoint key pair, for logging
func (b BlobIdentity) String() string {
	return b.PartitionKey() + "/" + b.RowKey()
}
