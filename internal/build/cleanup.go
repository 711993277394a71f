package build

import (
	"context"

	"github.com/chainguard-dev/clog"
)

// cleanup undoes the resources recorded in 'state' in reverse dependency
// order: instance, launch template, key pair, security group. The
// instance must be fully terminated first because the security group
// cannot be deleted while its network interface is still attached. Each
// step is individually guarded; failures are logged and never propagated
// so the pipeline's own result is preserved.
func (b *Builder) cleanup(ctx context.Context, bctx *buildContext, state *buildState) {
	log := clog.FromContext(ctx)
	name := bctx.resourceName("")

	if state.instanceID != "" {
		log.Info("terminating temporary instance", "instance_id", state.instanceID)
		if err := bctx.infra.TerminateInstance(ctx, state.instanceID); err != nil {
			log.Warn("failed to terminate instance", "instance_id", state.instanceID, "error", err)
		} else {
			log.Info("temporary instance terminated", "instance_id", state.instanceID)
		}
	}

	if err := bctx.infra.DeleteLaunchTemplate(ctx, name); err != nil {
		log.Warn("failed to delete launch template", "name", name, "error", err)
	}

	log.Info("deleting temporary key pair", "name", name)
	if err := bctx.infra.DeleteKeyPair(ctx, name); err != nil {
		log.Warn("failed to delete key pair", "name", name, "error", err)
	}

	if state.sgID != "" {
		log.Info("deleting temporary security group", "group_id", state.sgID)
		if err := bctx.infra.DeleteSecurityGroup(ctx, state.sgID); err != nil {
			log.Warn("failed to delete security group", "group_id", state.sgID, "error", err)
		}
	}
}
