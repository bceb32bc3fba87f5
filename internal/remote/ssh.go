package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

const sshConnectTimeout = 15 * time.Second

// SSHExecutor runs commands and file operations on a remote host over SSH.
// One connection is shared; every call opens a fresh session on it.
type SSHExecutor struct {
	client *ssh.Client
	user   string
	host   string
	logger *logrus.Logger
}

// NewSSHExecutor connects to user@host using the keys under ~/.ssh.
func NewSSHExecutor(host, user string, logger *logrus.Logger) (*SSHExecutor, error) {
	signers, err := loadSigners()
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signers...)},
		// Internal hosts with unmanaged host keys, same trust boundary as
		// the disabled TLS verification on the Bitbucket side.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshConnectTimeout,
	}
	addr := host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(host, "22")
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s@%s: %w", user, host, err)
	}
	return &SSHExecutor{client: client, user: user, host: host, logger: logger}, nil
}

func loadSigners() ([]ssh.Signer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	var signers []ssh.Signer
	for _, name := range []string{"id_ed25519", "id_rsa"} {
		key, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", name, err)
		}
		signers = append(signers, signer)
	}
	if len(signers) == 0 {
		return nil, errors.New("no usable private key found under ~/.ssh")
	}
	return signers, nil
}

// Close terminates the underlying SSH connection.
func (e *SSHExecutor) Close() error {
	return e.client.Close()
}

func (e *SSHExecutor) Run(ctx context.Context, command string, opts RunOptions) (Result, error) {
	e.logger.Infof("[%s@%s]$ %s", e.user, e.host, command)
	full := command
	if opts.Dir != "" {
		full = fmt.Sprintf("cd %s && %s", Quote(opts.Dir), command)
	}
	return e.runSession(ctx, command, full, nil)
}

func (e *SSHExecutor) runSession(ctx context.Context, display, command string, stdin *strings.Reader) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	session, err := e.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	err = session.Run(command)
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, &CommandError{
				Cmd:      display,
				ExitCode: res.ExitCode,
				Stdout:   res.Stdout,
				Stderr:   res.Stderr,
			}
		}
		return res, fmt.Errorf("run remote command: %w", err)
	}
	return res, nil
}

func (e *SSHExecutor) Exists(ctx context.Context, path string) (bool, error) {
	cmd := "test -e " + Quote(path)
	_, err := e.runSession(ctx, cmd, cmd, nil)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *SSHExecutor) Mkdir(ctx context.Context, path string) error {
	_, err := e.Run(ctx, "mkdir -p "+Quote(path), RunOptions{})
	return err
}

func (e *SSHExecutor) RemoveAll(ctx context.Context, path string) error {
	_, err := e.Run(ctx, "rm -rf "+Quote(path), RunOptions{})
	return err
}

func (e *SSHExecutor) ReadFile(ctx context.Context, path string) (string, error) {
	e.logger.Infof("[%s@%s]$ read < %s", e.user, e.host, path)
	cmd := "cat " + Quote(path)
	res, err := e.runSession(ctx, cmd, cmd, nil)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return res.Stdout, nil
}

func (e *SSHExecutor) WriteFile(ctx context.Context, path, content string) error {
	e.logger.Infof("[%s@%s]$ write > %s", e.user, e.host, path)
	cmd := "cat > " + Quote(path)
	if _, err := e.runSession(ctx, cmd, cmd, strings.NewReader(content)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
