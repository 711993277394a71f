// Package ec2 implements the cloud side of the build pipeline on the AWS
// EC2 API: temporary key pairs, security groups, launch templates, fleet
// instances and the final AMI.
package ec2

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"

	"github.com/10U-Labs-LLC/orfmi/internal/build"
)

// API is the subset of the EC2 API the builder touches. '*ec2.Client'
// satisfies it; tests substitute a fake.
type API interface {
	ec2.DescribeInstancesAPIClient
	ec2.DescribeInstanceStatusAPIClient
	ec2.DescribeImagesAPIClient
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	CreateKeyPair(ctx context.Context, params *ec2.CreateKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.CreateKeyPairOutput, error)
	DeleteKeyPair(ctx context.Context, params *ec2.DeleteKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error)
	CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
	CreateLaunchTemplate(ctx context.Context, params *ec2.CreateLaunchTemplateInput, optFns ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateOutput, error)
	DeleteLaunchTemplate(ctx context.Context, params *ec2.DeleteLaunchTemplateInput, optFns ...func(*ec2.Options)) (*ec2.DeleteLaunchTemplateOutput, error)
	CreateFleet(ctx context.Context, params *ec2.CreateFleetInput, optFns ...func(*ec2.Options)) (*ec2.CreateFleetOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	CreateImage(ctx context.Context, params *ec2.CreateImageInput, optFns ...func(*ec2.Options)) (*ec2.CreateImageOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

const (
	defaultSGDeleteRetries  = 30
	defaultSGDeleteInterval = 10 * time.Second
	defaultWaitTimeout      = time.Hour
)

// Client adapts the EC2 API to the build pipeline's Infra capability.
type Client struct {
	api API

	sgDeleteRetries  int
	sgDeleteInterval time.Duration
	waitTimeout      time.Duration
}

var _ build.Infra = (*Client)(nil)

// Option adjusts Client behavior.
type Option func(*Client)

// WithSecurityGroupDeleteRetry overrides the bounded retry policy used
// when a security group delete hits a dependency conflict.
func WithSecurityGroupDeleteRetry(retries int, interval time.Duration) Option {
	return func(c *Client) {
		c.sgDeleteRetries = retries
		c.sgDeleteInterval = interval
	}
}

// WithWaitTimeout overrides the maximum duration of each SDK waiter.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.waitTimeout = d
	}
}

func NewClient(api API, opts ...Option) *Client {
	c := &Client{
		api:              api,
		sgDeleteRetries:  defaultSGDeleteRetries,
		sgDeleteInterval: defaultSGDeleteInterval,
		waitTimeout:      defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiErrorCode extracts the provider error code, or "" for non-API errors.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
