package ec2

import (
	"maps"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// toTags converts a tag map to EC2 tags in a deterministic key order.
func toTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]types.Tag, 0, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		out = append(out, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(tags[k]),
		})
	}
	return out
}

// tagSpecification builds the tag specification for a resource creation
// call. Returns nil when there are no tags, since EC2 rejects an empty
// tag list.
func tagSpecification(rt types.ResourceType, tags map[string]string) []types.TagSpecification {
	ec2Tags := toTags(tags)
	if len(ec2Tags) == 0 {
		return nil
	}
	return []types.TagSpecification{{
		ResourceType: rt,
		Tags:         ec2Tags,
	}}
}
