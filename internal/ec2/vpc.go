package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// ResolveVPC returns the ID of the VPC the subnet belongs to.
func (c *Client) ResolveVPC(ctx context.Context, subnetID string) (string, error) {
	out, err := c.api.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		SubnetIds: []string{subnetID},
	})
	if err != nil {
		return "", fmt.Errorf("describing subnet %s: %w", subnetID, err)
	}
	if len(out.Subnets) == 0 || out.Subnets[0].VpcId == nil {
		return "", fmt.Errorf("subnet %s not found", subnetID)
	}
	return *out.Subnets[0].VpcId, nil
}
