// Package build implements the AMI provisioning pipeline and the
// compensating cleanup engine that undoes its resources on every exit
// path.
package build

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/10U-Labs-LLC/orfmi/internal/config"
)

var ErrNoResult = fmt.Errorf("build produced no AMI ID")

// Builder drives one AMI build end to end: create resources, provision
// the instance, snapshot it, then tear everything down.
type Builder struct {
	infra       Infra
	provisioner Provisioner
	cfg         config.Config
	setupScript string
	extraFiles  []string
}

func New(cfg config.Config, infra Infra, provisioner Provisioner, setupScript string, extraFiles []string) *Builder {
	return &Builder{
		infra:       infra,
		provisioner: provisioner,
		cfg:         cfg,
		setupScript: setupScript,
		extraFiles:  extraFiles,
	}
}

// Build runs the provisioning pipeline and returns the produced AMI ID.
// The cleanup engine runs before Build returns regardless of the
// pipeline's outcome, and its failures never mask the pipeline's result.
func (b *Builder) Build(ctx context.Context) (string, error) {
	bctx := &buildContext{
		infra:       b.infra,
		provisioner: b.provisioner,
		cfg:         b.cfg,
		setupScript: b.setupScript,
		uniqueID:    UniqueID(),
		extraFiles:  b.extraFiles,
	}
	state := &buildState{}

	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("run_id", bctx.uniqueID))

	defer b.cleanup(ctx, bctx, state)

	if err := b.run(ctx, bctx, state); err != nil {
		return "", err
	}
	if state.result == "" {
		return "", ErrNoResult
	}
	return state.result, nil
}

// run executes the pipeline steps in dependency order, recording every
// created resource into 'state' so cleanup can undo it. The first failing
// step aborts the rest.
func (b *Builder) run(ctx context.Context, bctx *buildContext, state *buildState) error {
	log := clog.FromContext(ctx)
	cfg := bctx.cfg
	name := bctx.resourceName("")

	log.Info("resolving VPC", "subnet_id", cfg.SubnetIDs[0])
	vpcID, err := bctx.infra.ResolveVPC(ctx, cfg.SubnetIDs[0])
	if err != nil {
		return fmt.Errorf("resolving VPC from subnet %s: %w", cfg.SubnetIDs[0], err)
	}
	log.Info("resolved VPC", "vpc_id", vpcID)

	log.Info("creating temporary key pair", "name", name)
	keyMaterial, err := bctx.infra.CreateKeyPair(ctx, name, cfg.Tags)
	if err != nil {
		return fmt.Errorf("creating key pair %s: %w", name, err)
	}
	state.keyMaterial = keyMaterial

	log.Info("creating temporary security group", "name", name)
	sgID, err := bctx.infra.CreateSecurityGroup(ctx, vpcID, name, cfg.Tags, cfg.Platform)
	if err != nil {
		return fmt.Errorf("creating security group %s: %w", name, err)
	}
	state.sgID = sgID

	log.Info("looking up source AMI", "pattern", cfg.SourceAMI)
	sourceID, err := bctx.infra.LookupSourceImage(ctx, cfg.SourceAMI)
	if err != nil {
		return fmt.Errorf("looking up source AMI %s: %w", cfg.SourceAMI, err)
	}
	log.Info("found source AMI", "image_id", sourceID)

	log.Info("creating launch template", "name", name)
	err = bctx.infra.CreateLaunchTemplate(ctx, LaunchTemplateParams{
		TemplateName:    name,
		SourceImageID:   sourceID,
		SecurityGroupID: sgID,
		KeyName:         name,
		IAMProfile:      cfg.IAMInstanceProfile,
	}, cfg.Tags)
	if err != nil {
		return fmt.Errorf("creating launch template %s: %w", name, err)
	}

	log.Info("requesting fleet instance",
		"instance_types", len(cfg.InstanceTypes),
		"subnets", len(cfg.SubnetIDs),
	)
	instanceID, err := bctx.infra.CreateFleetInstance(ctx, name, cfg.InstanceTypes, cfg.SubnetIDs)
	if err != nil {
		return fmt.Errorf("requesting fleet instance: %w", err)
	}
	state.instanceID = instanceID
	log.Info("instance launched", "instance_id", instanceID)

	addr, err := bctx.infra.WaitForInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("waiting for instance %s: %w", instanceID, err)
	}
	log.Info("instance ready", "address", addr)

	if _, statErr := os.Stat(bctx.setupScript); statErr == nil {
		log.Info("running setup script", "script", bctx.setupScript)
		target := Target{
			Addr:        addr,
			KeyMaterial: state.keyMaterial,
			Username:    cfg.SSHUsername,
			Timeout:     time.Duration(cfg.SSHTimeout) * time.Second,
			Retries:     cfg.SSHRetries,
		}
		if err := bctx.provisioner.Run(ctx, target, bctx.setupScript, bctx.extraFiles); err != nil {
			return fmt.Errorf("provisioning instance %s: %w", instanceID, err)
		}
	} else {
		log.Info("setup script not found, skipping provisioning", "script", bctx.setupScript)
	}

	log.Info("creating AMI", "name", cfg.AMIName)
	imageID, err := bctx.infra.CreateImage(ctx, instanceID, cfg.AMIName, cfg.AMIDescription, cfg.Tags)
	if err != nil {
		return fmt.Errorf("creating AMI %s: %w", cfg.AMIName, err)
	}
	state.result = imageID
	log.Info("AMI created", "image_id", imageID)
	return nil
}
