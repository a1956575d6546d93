// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/toeirei/keysync/internal/model"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSSHTimeout = 10 * time.Second

type sftpBucket struct {
	client *ssh.Client
	sftp   *sftp.Client
	agent  io.Closer
	dir    string
}

// newSFTPBucket connects with the identity file and any keys held by the
// running ssh-agent. Host keys must be present in the known_hosts file.
func newSFTPBucket(ctx context.Context, loc Location, opts Options) (*sftpBucket, error) {
	hostKeyCallback, err := knownHostsCallback(opts.KnownHosts)
	if err != nil {
		return nil, err
	}

	var auth []ssh.AuthMethod
	if opts.IdentityFile != "" {
		pem, err := os.ReadFile(opts.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	agentClient, agentConn := getSSHAgent()
	if agentClient != nil {
		auth = append(auth, ssh.PublicKeysCallback(agentClient.Signers))
	}
	if len(auth) == 0 {
		return nil, errors.New("no authentication method available (no identity file configured and no ssh agent found)")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultSSHTimeout
	}
	config := &ssh.ClientConfig{
		User:            loc.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := loc.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	closeAgent := func() {
		if agentConn != nil {
			_ = agentConn.Close()
		}
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeAgent()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		closeAgent()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		closeAgent()
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	return &sftpBucket{client: client, sftp: sftpClient, agent: agentConn, dir: loc.Path}, nil
}

func (b *sftpBucket) List(ctx context.Context) ([]model.RemoteObject, error) {
	infos, err := b.sftp.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read remote directory %s: %w", b.dir, err)
	}
	var out []model.RemoteObject
	for _, fi := range infos {
		if !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, model.RemoteObject{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	return out, nil
}

func (b *sftpBucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := b.sftp.Open(path.Join(b.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file %s: %w", name, err)
	}
	return f, nil
}

// Close closes the SFTP session, the SSH connection and the agent socket.
func (b *sftpBucket) Close() error {
	var errs []error
	if b.sftp != nil {
		errs = append(errs, b.sftp.Close())
	}
	if b.client != nil {
		errs = append(errs, b.client.Close())
	}
	if b.agent != nil {
		errs = append(errs, b.agent.Close())
	}
	return errors.Join(errs...)
}

// knownHostsCallback verifies host keys against file, defaulting to the
// user's ~/.ssh/known_hosts.
func knownHostsCallback(file string) (ssh.HostKeyCallback, error) {
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", file, err)
	}
	return cb, nil
}

// getSSHAgent connects to the agent named by SSH_AUTH_SOCK. Both results are
// nil when no agent is reachable.
func getSSHAgent() (agent.ExtendedAgent, net.Conn) {
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			return agent.NewClient(conn), conn
		}
	}
	return nil, nil
}
