package ec2

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
)

// CreateFleetInstance submits an instant fleet request spanning every
// instance type and subnet combination, letting EC2 pick whichever has
// capacity. It returns the ID of the single launched instance.
func (c *Client) CreateFleetInstance(ctx context.Context, templateName string, instanceTypes, subnetIDs []string) (string, error) {
	log := clog.FromContext(ctx)

	overrides := make([]types.FleetLaunchTemplateOverridesRequest, 0, len(instanceTypes)*len(subnetIDs))
	for _, it := range instanceTypes {
		for _, subnet := range subnetIDs {
			overrides = append(overrides, types.FleetLaunchTemplateOverridesRequest{
				InstanceType: types.InstanceType(it),
				SubnetId:     aws.String(subnet),
			})
		}
	}

	resp, err := c.api.CreateFleet(ctx, &ec2.CreateFleetInput{
		Type: types.FleetTypeInstant,
		LaunchTemplateConfigs: []types.FleetLaunchTemplateConfigRequest{{
			LaunchTemplateSpecification: &types.FleetLaunchTemplateSpecificationRequest{
				LaunchTemplateName: aws.String(templateName),
				Version:            aws.String("$Latest"),
			},
			Overrides: overrides,
		}},
		TargetCapacitySpecification: &types.TargetCapacitySpecificationRequest{
			TotalTargetCapacity:       aws.Int32(1),
			DefaultTargetCapacityType: types.DefaultTargetCapacityTypeOnDemand,
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating fleet: %w", err)
	}

	for _, inst := range resp.Instances {
		if len(inst.InstanceIds) > 0 {
			id := inst.InstanceIds[0]
			log.Info("launched instance", "instance_id", id)
			return id, nil
		}
	}

	var msgs []string
	for _, ferr := range resp.Errors {
		msgs = append(msgs, aws.ToString(ferr.ErrorMessage))
	}
	return "", fmt.Errorf("fleet request returned no instances: %s", strings.Join(msgs, "; "))
}
