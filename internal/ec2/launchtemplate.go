package ec2

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/10U-Labs-LLC/orfmi/internal/build"
)

// CreateLaunchTemplate creates the launch template combining the source
// image, security group, key pair and optional instance profile.
func (c *Client) CreateLaunchTemplate(ctx context.Context, params build.LaunchTemplateParams, tags map[string]string) error {
	data := &types.RequestLaunchTemplateData{
		ImageId:          aws.String(params.SourceImageID),
		KeyName:          aws.String(params.KeyName),
		SecurityGroupIds: []string{params.SecurityGroupID},
	}
	if params.IAMProfile != "" {
		data.IamInstanceProfile = &types.LaunchTemplateIamInstanceProfileSpecificationRequest{
			Name: aws.String(params.IAMProfile),
		}
	}

	_, err := c.api.CreateLaunchTemplate(ctx, &ec2.CreateLaunchTemplateInput{
		LaunchTemplateName: aws.String(params.TemplateName),
		LaunchTemplateData: data,
		TagSpecifications:  tagSpecification(types.ResourceTypeLaunchTemplate, tags),
	})
	if err != nil {
		return fmt.Errorf("creating launch template %s: %w", params.TemplateName, err)
	}
	return nil
}

// DeleteLaunchTemplate removes the launch template by name. A template
// that does not exist is a no-op.
func (c *Client) DeleteLaunchTemplate(ctx context.Context, name string) error {
	_, err := c.api.DeleteLaunchTemplate(ctx, &ec2.DeleteLaunchTemplateInput{
		LaunchTemplateName: aws.String(name),
	})
	if err != nil {
		if strings.Contains(apiErrorCode(err), "NotFound") {
			return nil
		}
		return fmt.Errorf("deleting launch template %s: %w", name, err)
	}
	return nil
}
