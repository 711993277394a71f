package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/10U-Labs-LLC/orfmi/internal/config"
)

// fakeInfra implements Infra in memory, recording every call so tests can
// assert on pipeline ordering and cleanup behavior. Individual operations
// fail when the corresponding error field is set.
type fakeInfra struct {
	calls []string

	fleetErr       error
	imageErr       error
	imageID        string
	deleteAllErr   error
	terminatedWith []string
	deletedKeys    []string
	deletedTmpls   []string
	deletedGroups  []string
}

func (f *fakeInfra) record(op string) { f.calls = append(f.calls, op) }

func (f *fakeInfra) count(op string) int {
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeInfra) ResolveVPC(_ context.Context, subnetID string) (string, error) {
	f.record("ResolveVPC")
	return "vpc-" + subnetID, nil
}

func (f *fakeInfra) CreateKeyPair(_ context.Context, name string, _ map[string]string) (string, error) {
	f.record("CreateKeyPair")
	return "key-material-" + name, nil
}

func (f *fakeInfra) DeleteKeyPair(_ context.Context, name string) error {
	f.record("DeleteKeyPair")
	f.deletedKeys = append(f.deletedKeys, name)
	return f.deleteAllErr
}

func (f *fakeInfra) CreateSecurityGroup(_ context.Context, _, _ string, _ map[string]string, _ string) (string, error) {
	f.record("CreateSecurityGroup")
	return "sg-123", nil
}

func (f *fakeInfra) DeleteSecurityGroup(_ context.Context, groupID string) error {
	f.record("DeleteSecurityGroup")
	f.deletedGroups = append(f.deletedGroups, groupID)
	return f.deleteAllErr
}

func (f *fakeInfra) LookupSourceImage(_ context.Context, _ string) (string, error) {
	f.record("LookupSourceImage")
	return "ami-source", nil
}

func (f *fakeInfra) CreateLaunchTemplate(_ context.Context, _ LaunchTemplateParams, _ map[string]string) error {
	f.record("CreateLaunchTemplate")
	return nil
}

func (f *fakeInfra) DeleteLaunchTemplate(_ context.Context, name string) error {
	f.record("DeleteLaunchTemplate")
	f.deletedTmpls = append(f.deletedTmpls, name)
	return f.deleteAllErr
}

func (f *fakeInfra) CreateFleetInstance(_ context.Context, _ string, _, _ []string) (string, error) {
	f.record("CreateFleetInstance")
	if f.fleetErr != nil {
		return "", f.fleetErr
	}
	return "i-abc123", nil
}

func (f *fakeInfra) WaitForInstance(_ context.Context, _ string) (string, error) {
	f.record("WaitForInstance")
	return "198.51.100.7", nil
}

func (f *fakeInfra) TerminateInstance(_ context.Context, instanceID string) error {
	f.record("TerminateInstance")
	f.terminatedWith = append(f.terminatedWith, instanceID)
	return nil
}

func (f *fakeInfra) CreateImage(_ context.Context, _, _, _ string, _ map[string]string) (string, error) {
	f.record("CreateImage")
	if f.imageErr != nil {
		return "", f.imageErr
	}
	return f.imageID, nil
}

type fakeProvisioner struct {
	calls   int
	lastTgt Target
	script  string
	extras  []string
	err     error
}

func (p *fakeProvisioner) Run(_ context.Context, target Target, setupScript string, extraFiles []string) error {
	p.calls++
	p.lastTgt = target
	p.script = setupScript
	p.extras = extraFiles
	return p.err
}

func testConfig() config.Config {
	return config.Config{
		AMIName:       "base-image",
		Region:        "us-west-2",
		SourceAMI:     "debian-12-*",
		SubnetIDs:     []string{"subnet-aaa", "subnet-bbb"},
		InstanceTypes: []string{"t3.micro"},
		Tags:          map[string]string{"Team": "platform"},
		SSHUsername:   "admin",
		SSHTimeout:    1,
		SSHRetries:    3,
		Platform:      config.PlatformLinux,
	}
}

func writeSetupScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "setup.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hello\n"), 0o755))
	return path
}

func TestBuildSuccess(t *testing.T) {
	infra := &fakeInfra{imageID: "ami-final"}
	prov := &fakeProvisioner{}
	extra := filepath.Join(t.TempDir(), "extra.txt")
	require.NoError(t, os.WriteFile(extra, []byte("x"), 0o644))

	b := New(testConfig(), infra, prov, writeSetupScript(t), []string{extra})
	imageID, err := b.Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "ami-final", imageID)

	// Provisioner received the launched instance's address and the key
	// material recorded at keypair creation.
	assert.Equal(t, 1, prov.calls)
	assert.Equal(t, "198.51.100.7", prov.lastTgt.Addr)
	assert.Contains(t, prov.lastTgt.KeyMaterial, "key-material-orfmi-")
	assert.Equal(t, []string{extra}, prov.extras)

	// Cleanup ran: the instance was terminated exactly once with the
	// launched instance ID, then template, key and group were removed.
	assert.Equal(t, []string{"i-abc123"}, infra.terminatedWith)
	assert.Equal(t, 1, infra.count("DeleteLaunchTemplate"))
	assert.Equal(t, 1, infra.count("DeleteKeyPair"))
	assert.Equal(t, []string{"sg-123"}, infra.deletedGroups)
}

func TestBuildCleanupOrder(t *testing.T) {
	infra := &fakeInfra{imageID: "ami-final"}
	b := New(testConfig(), infra, &fakeProvisioner{}, writeSetupScript(t), nil)
	_, err := b.Build(t.Context())
	require.NoError(t, err)

	n := len(infra.calls)
	require.GreaterOrEqual(t, n, 4)
	assert.Equal(t,
		[]string{"TerminateInstance", "DeleteLaunchTemplate", "DeleteKeyPair", "DeleteSecurityGroup"},
		infra.calls[n-4:],
	)
}

func TestBuildSetupScriptAbsent(t *testing.T) {
	infra := &fakeInfra{imageID: "ami-final"}
	prov := &fakeProvisioner{}

	b := New(testConfig(), infra, prov, filepath.Join(t.TempDir(), "missing.sh"), nil)
	imageID, err := b.Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "ami-final", imageID)
	assert.Zero(t, prov.calls, "provisioner must not run without a setup script")
}

func TestBuildFleetFailure(t *testing.T) {
	infra := &fakeInfra{fleetErr: fmt.Errorf("no capacity in any subnet")}
	prov := &fakeProvisioner{}

	b := New(testConfig(), infra, prov, writeSetupScript(t), nil)
	_, err := b.Build(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no capacity")

	// No instance was recorded, so termination is skipped, but template
	// and key deletion still happen exactly once each.
	assert.Zero(t, infra.count("TerminateInstance"))
	assert.Equal(t, 1, infra.count("DeleteLaunchTemplate"))
	assert.Equal(t, 1, infra.count("DeleteKeyPair"))
	assert.Equal(t, 1, infra.count("DeleteSecurityGroup"))
	assert.Zero(t, prov.calls)
	assert.Zero(t, infra.count("CreateImage"))
}

func TestBuildProvisionFailure(t *testing.T) {
	infra := &fakeInfra{imageID: "ami-final"}
	prov := &fakeProvisioner{err: fmt.Errorf("setup script exited 1")}

	b := New(testConfig(), infra, prov, writeSetupScript(t), nil)
	_, err := b.Build(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup script exited 1")

	// The launched instance still gets terminated.
	assert.Equal(t, []string{"i-abc123"}, infra.terminatedWith)
	assert.Zero(t, infra.count("CreateImage"))
}

func TestBuildNoResult(t *testing.T) {
	// CreateImage silently returns an empty ID.
	infra := &fakeInfra{imageID: ""}
	b := New(testConfig(), infra, &fakeProvisioner{}, filepath.Join(t.TempDir(), "missing.sh"), nil)
	_, err := b.Build(t.Context())
	require.ErrorIs(t, err, ErrNoResult)
}

func TestBuildCleanupErrorsDoNotMaskResult(t *testing.T) {
	infra := &fakeInfra{
		imageID:      "ami-final",
		deleteAllErr: fmt.Errorf("cloud says no"),
	}
	b := New(testConfig(), infra, &fakeProvisioner{}, filepath.Join(t.TempDir(), "missing.sh"), nil)
	imageID, err := b.Build(t.Context())
	require.NoError(t, err, "cleanup failures must not fail the build")
	assert.Equal(t, "ami-final", imageID)
	// All cleanup steps were still attempted.
	assert.Equal(t, 1, infra.count("DeleteLaunchTemplate"))
	assert.Equal(t, 1, infra.count("DeleteKeyPair"))
	assert.Equal(t, 1, infra.count("DeleteSecurityGroup"))
}
