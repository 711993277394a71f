package build

import (
	"context"
	"time"
)

// Infra is the cloud resource lifecycle capability the pipeline and the
// cleanup engine depend on. One method per operation; implementations own
// the wire details and any waiter policies.
type Infra interface {
	// ResolveVPC returns the VPC ID the given subnet belongs to.
	ResolveVPC(ctx context.Context, subnetID string) (string, error)

	// CreateKeyPair creates a temporary key pair and returns its private
	// key material.
	CreateKeyPair(ctx context.Context, name string, tags map[string]string) (string, error)

	// DeleteKeyPair removes a key pair. Safe to call for a key pair that
	// does not exist.
	DeleteKeyPair(ctx context.Context, name string) error

	// CreateSecurityGroup creates a security group in the VPC with an
	// inbound rule for the platform's remote-shell port.
	CreateSecurityGroup(ctx context.Context, vpcID, name string, tags map[string]string, platform string) (string, error)

	// DeleteSecurityGroup removes a security group, retrying while the
	// group is still referenced by a terminating instance.
	DeleteSecurityGroup(ctx context.Context, groupID string) error

	// LookupSourceImage resolves the source image by name pattern,
	// preferring the most recently created match.
	LookupSourceImage(ctx context.Context, pattern string) (string, error)

	// CreateLaunchTemplate creates the launch template the fleet request
	// launches from.
	CreateLaunchTemplate(ctx context.Context, params LaunchTemplateParams, tags map[string]string) error

	// DeleteLaunchTemplate removes a launch template by name. Safe to
	// call for a template that does not exist.
	DeleteLaunchTemplate(ctx context.Context, name string) error

	// CreateFleetInstance requests one instance across the cross-product
	// of instance types and subnets, returning the first instance ID.
	CreateFleetInstance(ctx context.Context, templateName string, instanceTypes, subnetIDs []string) (string, error)

	// WaitForInstance blocks until the instance is reachable and returns
	// its public address.
	WaitForInstance(ctx context.Context, instanceID string) (string, error)

	// TerminateInstance terminates the instance and waits for termination
	// to be confirmed.
	TerminateInstance(ctx context.Context, instanceID string) error

	// CreateImage snapshots the instance into an image, applies tags, and
	// returns the image ID.
	CreateImage(ctx context.Context, instanceID, name, description string, tags map[string]string) (string, error)
}

// LaunchTemplateParams carries everything needed to create the temporary
// launch template.
type LaunchTemplateParams struct {
	TemplateName    string
	SourceImageID   string
	SecurityGroupID string
	KeyName         string
	IAMProfile      string
}

// Target identifies the launched instance the provisioner should
// configure and how to authenticate to it.
type Target struct {
	Addr        string
	KeyMaterial string
	Username    string
	// Timeout bounds a single connection attempt, not the whole
	// connect loop.
	Timeout time.Duration
	Retries int
}

// Provisioner uploads and executes the setup script on a launched
// instance over a remote shell.
type Provisioner interface {
	Run(ctx context.Context, target Target, setupScript string, extraFiles []string) error
}
