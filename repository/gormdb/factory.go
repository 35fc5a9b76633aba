package gormdb

import "github.com/dbguardian/dbguardian/repository"

func init() {
	repository.RegistePersistent(NewMySQLFactory)
	repository.RegistePersistent(NewPostgresFactory)
}

type MySQLFactory struct{}

func (factory *MySQLFactory) CreatePersistent() repository.PersistentMgr {
	return NewGormPersistent(MySQLPersistentName)
}

func (factory *MySQLFactory) GetPersistentName() string {
	return MySQLPersistentName
}

func NewMySQLFactory() repository.PersistentFactory {
	return &MySQLFactory{}
}

type PostgresFactory struct{}

func (factory *PostgresFactory) CreatePersistent() repository.PersistentMgr {
	return NewGormPersistent(PostgresPersistentName)
}

func (factory *PostgresFactory) GetPersistentName() string {
	return PostgresPersistentName
}

func NewPostgresFactory() repository.PersistentFactory {
	return &PostgresFactory{}
}
