package filters

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
)

// BlobFilter decides which flow-log blobs the watcher hands to stage 1
type BlobFilter struct {
	config   *config.FilterConfig
	compiled []*regexp.Regexp
}

// NewBlobFilter creates a new blob filter with compiled regex patterns
func NewBlobFilter(cfg *config.FilterConfig) (*BlobFilter, error) {
	var compiled []*regexp.Regexp

	// Compile NSG regex patterns
	for _, pattern := range cfg.NSGs {
		regex, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid nsg regex pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, regex)
	}

	return &BlobFilter{
		config:   cfg,
		compiled: compiled,
	}, nil
}

// ShouldProcess determines if a blob should be processed based on all filters
func (f *BlobFilter) ShouldProcess(id events.BlobIdentity, blobName string, shardingConfig *config.ShardingConfig) bool {
	if !f.matchesDateFilter(id) {
		return false
	}
	if !matchesList(f.config.Subscriptions, id.Subscription) {
		return false
	}
	if !matchesList(f.config.ResourceGroups, id.ResourceGroup) {
		return false
	}
	if !f.matchesNSGFilter(id.NSG) {
		return false
	}
	return f.matchesShardingFilter(blobName, shardingConfig)
}

// matchesDateFilter checks if the blob hour falls in the date filter
func (f *BlobFilter) matchesDateFilter(id events.BlobIdentity) bool {
	if f.config.MinDate == nil && f.config.MaxDate == nil {
		return true
	}

	blobDate, err := id.Time()
	if err != nil {
		// Unparseable blob time, skip this filter
		return true
	}
	day := blobDate.Format("2006-01-02")

	if f.config.MinDate != nil {
		minDate, err := time.Parse("2006-01-02", *f.config.MinDate)
		if err == nil && day < minDate.Format("2006-01-02") {
			return false
		}
	}

	if f.config.MaxDate != nil {
		maxDate, err := time.Parse("2006-01-02", *f.config.MaxDate)
		if err == nil && day > maxDate.Format("2006-01-02") {
			return false
		}
	}

	return true
}

// matchesList checks value against a case-insensitive allow list; empty allows all.
func matchesList(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return true
		}
	}
	return false
}

// matchesNSGFilter checks if the NSG name matches any regex
func (f *BlobFilter) matchesNSGFilter(nsg string) bool {
	if len(f.compiled) == 0 {
		return true
	}
	for _, regex := range f.compiled {
		if regex.MatchString(nsg) {
			return true
		}
	}
	return false
}

// matchesShardingFilter checks if the blob should be processed by this shard
func (f *BlobFilter) matchesShardingFilter(blobName string, shardingConfig *config.ShardingConfig) bool {
	if shardingConfig == nil || !shardingConfig.Enabled {
		return true
	}
	return GetShardForBlob(blobName, shardingConfig) == shardingConfig.ShardNumber
}

// GetShardForBlob returns the shard number for a given blob name
func GetShardForBlob(blobName string, shardingConfig *config.ShardingConfig) int {
	if !shardingConfig.Enabled || shardingConfig.ShardsCount <= 0 {
		return 0
	}

	hash := md5.Sum([]byte(blobName))
	hashValue := 0
	for _, b := range hash {
		hashValue += int(b)
	}
	return hashValue % shardingConfig.ShardsCount
}
