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

// CreateKeyPair creates a temporary ed25519 key pair and returns its
// PEM-encoded private key material. The material is never written to
// disk; it lives only in the build's memory.
func (c *Client) CreateKeyPair(ctx context.Context, name string, tags map[string]string) (string, error) {
	log := clog.FromContext(ctx)

	out, err := c.api.CreateKeyPair(ctx, &ec2.CreateKeyPairInput{
		KeyName:           aws.String(name),
		KeyType:           types.KeyTypeEd25519,
		KeyFormat:         types.KeyFormatPem,
		TagSpecifications: tagSpecification(types.ResourceTypeKeyPair, tags),
	})
	if err != nil {
		return "", fmt.Errorf("creating key pair %s: %w", name, err)
	}
	if out.KeyMaterial == nil || *out.KeyMaterial == "" {
		return "", fmt.Errorf("no key material returned for key pair %s", name)
	}
	log.Info("created key pair", "name", name)
	return *out.KeyMaterial, nil
}

// DeleteKeyPair removes the key pair. A key pair that does not exist is
// a no-op.
func (c *Client) DeleteKeyPair(ctx context.Context, name string) error {
	_, err := c.api.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{
		KeyName: aws.String(name),
	})
	if err != nil {
		if strings.HasPrefix(apiErrorCode(err), "InvalidKeyPair") {
			return nil
		}
		return fmt.Errorf("deleting key pair %s: %w", name, err)
	}
	return nil
}
