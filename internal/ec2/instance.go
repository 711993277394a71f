package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/chainguard-dev/clog"
)

// WaitForInstance blocks until the instance is running and has passed
// both status checks, then returns its public IP address.
func (c *Client) WaitForInstance(ctx context.Context, instanceID string) (string, error) {
	log := clog.FromContext(ctx)
	log.Info("waiting for instance to run", "instance_id", instanceID)

	describe := &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}

	runWaiter := ec2.NewInstanceRunningWaiter(c.api)
	out, err := runWaiter.WaitForOutput(ctx, describe, c.waitTimeout)
	if err != nil {
		return "", fmt.Errorf("waiting for instance %s to run: %w", instanceID, err)
	}

	var addr string
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if inst.PublicIpAddress != nil {
				addr = aws.ToString(inst.PublicIpAddress)
			}
		}
	}
	if addr == "" {
		return "", fmt.Errorf("instance %s has no public IP address", instanceID)
	}

	log.Info("waiting for instance status checks", "instance_id", instanceID)
	okWaiter := ec2.NewInstanceStatusOkWaiter(c.api)
	if err := okWaiter.Wait(ctx, &ec2.DescribeInstanceStatusInput{
		InstanceIds: []string{instanceID},
	}, c.waitTimeout); err != nil {
		return "", fmt.Errorf("waiting for instance %s status checks: %w", instanceID, err)
	}

	return addr, nil
}

// TerminateInstance terminates the instance and waits until termination
// completes so dependent resources can be deleted afterwards.
func (c *Client) TerminateInstance(ctx context.Context, instanceID string) error {
	log := clog.FromContext(ctx)
	log.Info("terminating instance", "instance_id", instanceID)

	_, err := c.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("terminating instance %s: %w", instanceID, err)
	}

	waiter := ec2.NewInstanceTerminatedWaiter(c.api)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, c.waitTimeout); err != nil {
		return fmt.Errorf("waiting for instance %s to terminate: %w", instanceID, err)
	}
	return nil
}
