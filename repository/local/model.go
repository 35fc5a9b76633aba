package local

import "github.com/dbguardian/dbguardian/model"

type PersistentData struct {
	Instances  map[string]model.Instance       `json:"instances" yaml:"instances"`
	Strategies map[string]model.BackupStrategy `json:"strategies" yaml:"strategies"`
	Records    map[string]model.BackupRecord   `json:"records" yaml:"records"`
	Tasks      map[string]model.OneOffTask     `json:"tasks" yaml:"tasks"`
}
