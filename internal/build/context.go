package build

import (
	"strings"

	"github.com/google/uuid"

	"github.com/10U-Labs-LLC/orfmi/internal/config"
)

const namePrefix = "orfmi"

// buildContext is the immutable bundle threaded through every pipeline
// step and the cleanup engine.
type buildContext struct {
	infra       Infra
	provisioner Provisioner
	cfg         config.Config
	setupScript string
	uniqueID    string
	extraFiles  []string
}

// resourceName derives the deterministic, run-unique name used to create
// and later delete every transient resource.
func (c *buildContext) resourceName(suffix string) string {
	base := namePrefix + "-" + c.uniqueID
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}

// buildState records which resources the pipeline has created so far.
// Fields are set at most once per run; the cleanup engine only acts on
// fields that are set.
type buildState struct {
	instanceID  string
	sgID        string
	keyMaterial string
	result      string
}

// UniqueID returns a short random token that namespaces all resources
// created by one run, so concurrent runs do not collide.
func UniqueID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
