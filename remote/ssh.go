package remote

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
)

const DialTimeout = 10 * time.Second

// SshExecutor holds one ssh connection plus a lazily opened sftp
// channel on top of it.
type SshExecutor struct {
	creds      Credentials
	client     *ssh.Client
	sftpClient *sftp.Client
}

func sshConfigWithPassword(user, password string) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		Timeout:         DialTimeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
}

func sshConfigWithPublicKey(user, keyPath string) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		Timeout:         DialTimeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, nil
}

// NewSshExecutor dials the host. Key authentication wins when a key
// path is configured, password otherwise.
func NewSshExecutor(creds Credentials) (Executor, error) {
	var (
		clientConfig *ssh.ClientConfig
		err          error
	)
	if creds.KeyPath != "" {
		clientConfig, err = sshConfigWithPublicKey(creds.User, creds.KeyPath)
		if err != nil {
			return nil, err
		}
	} else {
		clientConfig = sshConfigWithPassword(creds.User, creds.Password)
	}

	port := creds.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(creds.Host, fmt.Sprintf("%d", port))
	client, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return &SshExecutor{creds: creds, client: client}, nil
}

// Client exposes the underlying connection for transports layered on
// top of ssh, such as scp.
func (e *SshExecutor) Client() *ssh.Client {
	return e.client
}

func (e *SshExecutor) Run(cmd string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = time.Duration(common.GetIntwithDefault(config.GlobalConfig.Backup.CommandTimeout, 3600)) * time.Second
	}
	session, err := e.client.NewSession()
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	defer session.Close()

	log.Logger.Debugf("[%s] run: %s", e.creds.Host, cmd)

	type result struct {
		output []byte
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		output, err := session.CombinedOutput(cmd)
		ch <- result{output, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return string(r.output), errors.Wrapf(r.err, "run '%s' on host %s fail: %s", cmd, e.creds.Host, string(r.output))
		}
		return string(r.output), nil
	case <-time.After(timeout):
		// the session dies with the connection on Close
		return "", errors.Errorf("run '%s' on host %s timeout after %v", cmd, e.creds.Host, timeout)
	}
}

func (e *SshExecutor) sftp() (*sftp.Client, error) {
	if e.sftpClient != nil {
		return e.sftpClient, nil
	}
	client, err := sftp.NewClient(e.client)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	e.sftpClient = client
	return client, nil
}

func (e *SshExecutor) Upload(localPath, remotePath string) error {
	client, err := e.sftp()
	if err != nil {
		return err
	}
	srcFile, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer srcFile.Close()

	dstFile, err := client.Create(remotePath)
	if err != nil {
		return errors.Wrapf(err, "create %s on host %s", remotePath, e.creds.Host)
	}
	defer dstFile.Close()

	if _, err = io.Copy(dstFile, srcFile); err != nil {
		return errors.Wrapf(err, "upload %s to %s:%s", localPath, e.creds.Host, remotePath)
	}
	return nil
}

func (e *SshExecutor) Download(remotePath, localPath string) error {
	client, err := e.sftp()
	if err != nil {
		return err
	}
	srcFile, err := client.Open(remotePath)
	if err != nil {
		return errors.Wrapf(err, "open %s on host %s", remotePath, e.creds.Host)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(localPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer dstFile.Close()

	if _, err = io.Copy(dstFile, srcFile); err != nil {
		return errors.Wrapf(err, "download %s:%s to %s", e.creds.Host, remotePath, localPath)
	}
	return nil
}

func (e *SshExecutor) Close() {
	if e.sftpClient != nil {
		e.sftpClient.Close()
		e.sftpClient = nil
	}
	if e.client != nil {
		e.client.Close()
	}
}
