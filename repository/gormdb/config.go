package gormdb

import (
	"github.com/dbguardian/dbguardian/common"
)

const (
	MySQLPersistentName    string = "mysql"
	PostgresPersistentName string = "postgres"

	TBL_INSTANCE string = "tbl_instance"
	TBL_STRATEGY string = "tbl_strategy"
	TBL_RECORD   string = "tbl_record"
	TBL_TASK     string = "tbl_task"
)

type DBConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"password"`
	DataBase        string `yaml:"database" json:"database"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxIdleTime int    `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

func (c *DBConfig) Normalize(defaultPort int) {
	c.Host = common.GetStringwithDefault(c.Host, "127.0.0.1")
	c.Port = common.GetIntwithDefault(c.Port, defaultPort)
	c.User = common.GetStringwithDefault(c.User, "dbguardian")
	c.DataBase = common.GetStringwithDefault(c.DataBase, "dbguardian")
	c.MaxIdleConns = common.GetIntwithDefault(c.MaxIdleConns, 10)
	c.MaxOpenConns = common.GetIntwithDefault(c.MaxOpenConns, 50)
	c.ConnMaxIdleTime = common.GetIntwithDefault(c.ConnMaxIdleTime, 10)
	c.ConnMaxLifetime = common.GetIntwithDefault(c.ConnMaxLifetime, 3600)
}
