// Package remote runs commands and moves files on database hosts. The
// engine only sees the Executor interface so jobs can be exercised
// against fakes.
package remote

import (
	"time"

	"github.com/dbguardian/dbguardian/model"
)

// Credentials identifies one ssh endpoint.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyPath  string
}

func CredentialsFromInstance(instance *model.Instance) Credentials {
	return Credentials{
		Host:     instance.SshHost,
		Port:     instance.SshPort,
		User:     instance.SshUser,
		Password: instance.SshPassword,
		KeyPath:  instance.SshKeyPath,
	}
}

func CredentialsFromTarget(target model.TargetRemote) Credentials {
	return Credentials{
		Host:     target.Host,
		Port:     target.Port,
		User:     target.User,
		Password: target.Password,
		KeyPath:  target.KeyPath,
	}
}

// Executor abstracts command execution on a host. Implementations are
// not safe for concurrent use; each job dials its own.
type Executor interface {
	// Run executes cmd and returns its combined output. A zero timeout
	// falls back to the configured command timeout.
	Run(cmd string, timeout time.Duration) (string, error)
	// Upload copies a local file onto the host.
	Upload(localPath, remotePath string) error
	// Download copies a file from the host to the local filesystem.
	Download(remotePath, localPath string) error
	Close()
}

// Factory dials an executor for the given credentials. Tests swap this
// for a fake; production uses NewSshExecutor.
type Factory func(creds Credentials) (Executor, error)
