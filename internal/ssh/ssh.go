// Package ssh provisions a launched instance over SSH: it uploads the
// setup script, runs it, and copies any extra files onto the machine.
package ssh

import (
	"context"
	"fmt"
	"net"
	"path"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/crypto/ssh"

	"github.com/10U-Labs-LLC/orfmi/internal/build"
)

// ErrConnect wraps the last dial error once every connection attempt has
// been spent.
var ErrConnect = fmt.Errorf("failed to connect")

const (
	defaultRetryInterval = 10 * time.Second

	// remoteDir is where uploads land on the instance. Writable on every
	// stock AMI regardless of the login user.
	remoteDir = "/tmp"
)

// Provisioner connects to instances over SSH and runs the setup script.
type Provisioner struct {
	interval time.Duration

	dial func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
	open func(client *ssh.Client) (Session, error)
}

var _ build.Provisioner = (*Provisioner)(nil)

// Option adjusts Provisioner behavior.
type Option func(*Provisioner)

// WithRetryInterval overrides the pause between connection attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(p *Provisioner) {
		p.interval = d
	}
}

func NewProvisioner(opts ...Option) *Provisioner {
	p := &Provisioner{
		interval: defaultRetryInterval,
		dial:     ssh.Dial,
		open:     newSession,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run uploads the setup script, marks it executable, executes it, then
// uploads the extra files in order. Everything lands under /tmp on the
// instance.
func (p *Provisioner) Run(ctx context.Context, target build.Target, setupScript string, extraFiles []string) error {
	log := clog.FromContext(ctx)

	signer, err := ssh.ParsePrivateKey([]byte(target.KeyMaterial))
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	client, err := p.connect(ctx, target, signer)
	if err != nil {
		return err
	}

	sess, err := p.open(client)
	if err != nil {
		return fmt.Errorf("opening session on %s: %w", target.Addr, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("closing session", "error", cerr)
		}
	}()

	remoteScript := path.Join(remoteDir, filepath.Base(setupScript))
	if err := sess.Upload(ctx, setupScript, remoteScript); err != nil {
		return fmt.Errorf("uploading setup script: %w", err)
	}
	if err := sess.SetExecutable(remoteScript); err != nil {
		return fmt.Errorf("marking %s executable: %w", remoteScript, err)
	}
	if err := sess.Execute(ctx, remoteScript); err != nil {
		return fmt.Errorf("running setup script: %w", err)
	}

	for _, file := range extraFiles {
		remote := path.Join(remoteDir, filepath.Base(file))
		if err := sess.Upload(ctx, file, remote); err != nil {
			return fmt.Errorf("uploading %s: %w", file, err)
		}
	}
	return nil
}

// connect dials the instance, retrying a fixed number of times. An
// instance often starts refusing connections for a while after its
// status checks pass, so early failures are expected.
func (p *Provisioner) connect(ctx context.Context, target build.Target, signer ssh.Signer) (*ssh.Client, error) {
	log := clog.FromContext(ctx)

	cfg := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// The host key was generated moments ago on a machine we are
		// about to destroy, so there is nothing to pin it against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         target.Timeout,
	}

	addr := net.JoinHostPort(target.Addr, "22")
	var lastErr error
	for attempt := 1; attempt <= target.Retries; attempt++ {
		client, err := p.dial("tcp", addr, cfg)
		if err == nil {
			log.Info("connected", "addr", addr, "attempt", attempt)
			return client, nil
		}
		lastErr = err
		log.Debug("connection attempt failed", "addr", addr, "attempt", attempt, "error", err)

		if attempt < target.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.interval):
			}
		}
	}
	return nil, fmt.Errorf("%w to %s after %d attempts: %w", ErrConnect, target.Addr, target.Retries, lastErr)
}
