// Package storage resolves a StorageTarget variant into a Target that
// can store, fetch and drop backup artifacts. The engine never touches
// target internals; it keeps only the BackupLocation descriptor.
package storage

import (
	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/model"
)

type Target interface {
	Kind() string
	// Write stores the file at localPath under name and returns the
	// resolved location of the artifact.
	Write(localPath, name string) (model.BackupLocation, error)
	// Read fetches the artifact into localPath.
	Read(location model.BackupLocation, localPath string) error
	Remove(location model.BackupLocation) error
	// TestConnectivity proves the target is reachable and writable
	// without storing an artifact.
	TestConnectivity() error
}

// GetTarget maps the tagged variant onto an implementation. The
// instance supplies ssh credentials for the mysql_host kind and may be
// nil for the others.
func GetTarget(target model.StorageTarget, instance *model.Instance) (Target, error) {
	target.Normalize()
	if err := target.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	switch target.Kind {
	case model.StorageDefault:
		return NewLocalTarget(target.Local.Path), nil
	case model.StorageMySQLHost:
		if instance == nil || instance.SshHost == "" {
			return nil, errors.Errorf("mysql_host target requires instance ssh credentials")
		}
		return NewHostTarget(instance, target.Host.Path), nil
	case model.StorageRemoteServer:
		return NewRemoteTarget(target.Remote), nil
	case model.StorageOSS:
		return NewOssTarget(target.OSS)
	}
	return nil, errors.Errorf("unknown storage kind %s", target.Kind)
}
