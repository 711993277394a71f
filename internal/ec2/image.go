package ec2

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
)

// ErrNoSourceImage is returned when the source AMI pattern matches
// nothing in the region.
var ErrNoSourceImage = fmt.Errorf("no source image found")

// LookupSourceImage resolves the source AMI name pattern to the most
// recently created available image matching it.
func (c *Client) LookupSourceImage(ctx context.Context, pattern string) (string, error) {
	resp, err := c.api.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Filters: []types.Filter{
			{Name: aws.String("name"), Values: []string{pattern}},
			{Name: aws.String("state"), Values: []string{"available"}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describing images for %s: %w", pattern, err)
	}
	if len(resp.Images) == 0 {
		return "", fmt.Errorf("%w: pattern %s", ErrNoSourceImage, pattern)
	}

	// CreationDate is RFC 3339, so the lexicographic max is the newest.
	newest := slices.MaxFunc(resp.Images, func(a, b types.Image) int {
		return strings.Compare(aws.ToString(a.CreationDate), aws.ToString(b.CreationDate))
	})

	id := aws.ToString(newest.ImageId)
	clog.FromContext(ctx).Info("resolved source image",
		"pattern", pattern, "image_id", id, "name", aws.ToString(newest.Name))
	return id, nil
}

// CreateImage creates an AMI from the instance, waits for it to become
// available and tags both the image and its snapshots.
func (c *Client) CreateImage(ctx context.Context, instanceID, name, description string, tags map[string]string) (string, error) {
	log := clog.FromContext(ctx)
	log.Info("creating image", "instance_id", instanceID, "name", name)

	resp, err := c.api.CreateImage(ctx, &ec2.CreateImageInput{
		InstanceId:  aws.String(instanceID),
		Name:        aws.String(name),
		Description: aws.String(description),
	})
	if err != nil {
		return "", fmt.Errorf("creating image %s: %w", name, err)
	}
	imageID := aws.ToString(resp.ImageId)

	log.Info("waiting for image to become available", "image_id", imageID)
	waiter := ec2.NewImageAvailableWaiter(c.api)
	if err := waiter.Wait(ctx, &ec2.DescribeImagesInput{
		ImageIds: []string{imageID},
	}, c.waitTimeout); err != nil {
		return "", fmt.Errorf("waiting for image %s: %w", imageID, err)
	}

	if err := c.tagImage(ctx, imageID, tags); err != nil {
		return "", err
	}
	return imageID, nil
}

func (c *Client) tagImage(ctx context.Context, imageID string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}

	if _, err := c.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{imageID},
		Tags:      toTags(tags),
	}); err != nil {
		return fmt.Errorf("tagging image %s: %w", imageID, err)
	}

	resp, err := c.api.DescribeImages(ctx, &ec2.DescribeImagesInput{
		ImageIds: []string{imageID},
	})
	if err != nil {
		return fmt.Errorf("describing image %s: %w", imageID, err)
	}

	var snapshots []string
	for _, img := range resp.Images {
		for _, bdm := range img.BlockDeviceMappings {
			if bdm.Ebs != nil && bdm.Ebs.SnapshotId != nil {
				snapshots = append(snapshots, aws.ToString(bdm.Ebs.SnapshotId))
			}
		}
	}
	if len(snapshots) == 0 {
		return nil
	}

	if _, err := c.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: snapshots,
		Tags:      toTags(tags),
	}); err != nil {
		return fmt.Errorf("tagging snapshots of image %s: %w", imageID, err)
	}
	return nil
}
