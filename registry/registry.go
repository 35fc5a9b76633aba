// Package registry looks up managed instances and probes them over the
// mysql protocol. Lookups are cached briefly so hot paths such as the
// task runner do not hammer the repository.
package registry

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
)

var instanceCache = cache.New(30*time.Second, time.Minute)

// SystemDatabases never take part in backup or restore.
var SystemDatabases = []string{"information_schema", "performance_schema", "mysql", "sys"}

// GetInstance fetches an instance, preferring the cache.
func GetInstance(instanceId string) (model.Instance, error) {
	if v, ok := instanceCache.Get(instanceId); ok {
		return v.(model.Instance), nil
	}
	instance, err := repository.Ps.GetInstanceById(instanceId)
	if err != nil {
		return model.Instance{}, err
	}
	instanceCache.SetDefault(instanceId, instance)
	return instance, nil
}

// Invalidate drops the cached copy after create/update/delete.
func Invalidate(instanceId string) {
	instanceCache.Delete(instanceId)
}

func dsn(instance *model.Instance) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=5s", instance.User, instance.Password,
		instance.Host, common.GetIntwithDefault(instance.Port, 3306))
}

// Ping checks that the mysql endpoint answers.
func Ping(instance *model.Instance) error {
	db, err := sql.Open("mysql", dsn(instance))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()
	if err = db.Ping(); err != nil {
		return errors.Wrapf(err, "ping %s:%d", instance.Host, instance.Port)
	}
	return nil
}

// ListDatabases enumerates the non-system databases of an instance.
func ListDatabases(instance *model.Instance) ([]string, error) {
	db, err := sql.Open("mysql", dsn(instance))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer db.Close()

	rows, err := db.Query("SHOW DATABASES")
	if err != nil {
		return nil, errors.Wrapf(err, "show databases on %s:%d", instance.Host, instance.Port)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if common.ArraySearch(name, SystemDatabases) {
			continue
		}
		databases = append(databases, name)
	}
	return databases, errors.Wrap(rows.Err(), "")
}
