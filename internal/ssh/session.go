package ssh

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Session is one provisioning session on a connected instance. It
// carries both the file-transfer channel and the command channel.
type Session interface {
	// Upload copies a local file to the remote path.
	Upload(ctx context.Context, local, remote string) error
	// SetExecutable marks the remote file executable.
	SetExecutable(remote string) error
	// Execute runs the remote path as a command, logging its output.
	Execute(ctx context.Context, remote string) error
	// Close releases both channels and the underlying connection.
	Close() error
}

type session struct {
	client *ssh.Client
	files  *sftp.Client
}

// newSession opens an SFTP channel over the connected client. The
// session takes ownership of the client and closes it with Close.
func newSession(client *ssh.Client) (Session, error) {
	files, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening sftp channel: %w", err)
	}
	return &session{client: client, files: files}, nil
}

func (s *session) Upload(ctx context.Context, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("opening %s: %w", local, err)
	}
	defer src.Close()

	dst, err := s.files.Create(remote)
	if err != nil {
		return fmt.Errorf("creating %s: %w", remote, err)
	}

	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", remote, err)
	}

	clog.FromContext(ctx).Info("uploaded file", "local", local, "remote", remote, "bytes", n)
	return nil
}

func (s *session) SetExecutable(remote string) error {
	if err := s.files.Chmod(remote, 0o755); err != nil {
		return fmt.Errorf("chmod %s: %w", remote, err)
	}
	return nil
}

func (s *session) Execute(ctx context.Context, remote string) error {
	log := clog.FromContext(ctx)
	log.Info("executing setup script", "remote", remote)

	cmd, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("opening exec channel: %w", err)
	}
	defer cmd.Close()

	out, err := cmd.CombinedOutput(remote)
	for scanner := bufio.NewScanner(bytes.NewReader(out)); scanner.Scan(); {
		log.Info("remote output", "line", scanner.Text())
	}
	if err != nil {
		return fmt.Errorf("executing %s: %w", remote, err)
	}
	return nil
}

func (s *session) Close() error {
	return errors.Join(s.files.Close(), s.client.Close())
}
