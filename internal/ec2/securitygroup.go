package ec2

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/10U-Labs-LLC/orfmi/internal/config"
)

const (
	portSSH = int32(22)
	portRDP = int32(3389)

	errCodeDependencyViolation = "DependencyViolation"
)

// CreateSecurityGroup creates a temporary security group in the VPC with
// a single inbound rule opening the platform's remote-shell port.
func (c *Client) CreateSecurityGroup(ctx context.Context, vpcID, name string, tags map[string]string, platform string) (string, error) {
	log := clog.FromContext(ctx)

	out, err := c.api.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(name),
		Description:       aws.String("temporary security group for AMI build"),
		VpcId:             aws.String(vpcID),
		TagSpecifications: tagSpecification(types.ResourceTypeSecurityGroup, tags),
	})
	if err != nil {
		return "", fmt.Errorf("creating security group %s: %w", name, err)
	}
	groupID := aws.ToString(out.GroupId)
	log.Info("created security group", "group_id", groupID)

	port := portSSH
	if platform == config.PlatformWindows {
		port = portRDP
	}
	_, err = c.api.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(groupID),
		IpPermissions: []types.IpPermission{{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(port),
			ToPort:     aws.Int32(port),
			IpRanges:   []types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("authorizing ingress on %s: %w", groupID, err)
	}
	log.Info("authorized inbound rule", "group_id", groupID, "port", port)
	return groupID, nil
}

// DeleteSecurityGroup removes the security group. Dependency conflicts
// are retried with a fixed interval up to a ceiling, because the group
// cannot be deleted until the terminated instance has released its
// network interface.
func (c *Client) DeleteSecurityGroup(ctx context.Context, groupID string) error {
	log := clog.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= c.sgDeleteRetries; attempt++ {
		_, err := c.api.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
			GroupId: aws.String(groupID),
		})
		if err == nil {
			return nil
		}
		if apiErrorCode(err) != errCodeDependencyViolation {
			return fmt.Errorf("deleting security group %s: %w", groupID, err)
		}
		lastErr = err
		log.Debug("security group still in use, retrying",
			"group_id", groupID,
			"attempt", attempt,
		)
		if attempt < c.sgDeleteRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.sgDeleteInterval):
			}
		}
	}
	return fmt.Errorf("deleting security group %s after %d attempts: %w", groupID, c.sgDeleteRetries, lastErr)
}
