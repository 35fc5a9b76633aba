package controller

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-basic/uuid"

	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/registry"
	"github.com/dbguardian/dbguardian/repository"
)

const (
	InstanceIdPath = "instanceId"
)

type InstanceController struct {
	Controller
}

func NewInstanceController(wrapfunc Wrapfunc) *InstanceController {
	return &InstanceController{
		Controller: Controller{
			wrapfunc: wrapfunc,
		},
	}
}

// @Summary CreateInstance
// @Description Register a MySQL instance
// @version 1.0
// @Param req body model.InstanceReq true "request body"
// @Failure 200 {string} json "{"retCode":"5000","retMsg":"invalid params","entity":nil}"
// @Failure 200 {string} json "{"retCode":"5101","retMsg":"data insert failed","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":"8b46a60c-4f01-11ee-9d3f-0242ac110002"}"
// @Router /api/v1/instance [post]
func (controller *InstanceController) CreateInstance(c *gin.Context) {
	var req model.InstanceReq
	if err := model.DecodeRequestBody(c.Request, &req); err != nil {
		controller.wrapfunc(c, model.E_UNMARSHAL_FAILED, err)
		return
	}
	if req.Host == "" || req.User == "" {
		err := fmt.Errorf("host and user must not be empty")
		controller.wrapfunc(c, model.E_INVALID_PARAMS, err)
		return
	}

	now := time.Now()
	instance := instanceFromReq(req)
	instance.InstanceId = uuid.New()
	instance.CreateTime = now
	instance.UpdateTime = now
	if err := repository.Ps.CreateInstance(instance); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_INSERT_FAILED), err)
		return
	}

	controller.wrapfunc(c, model.E_SUCCESS, instance.InstanceId)
}

// @Summary UpdateInstance
// @Description Update a registered instance
// @version 1.0
// @Param instanceId path string true "instance id"
// @Param req body model.InstanceReq true "request body"
// @Failure 200 {string} json "{"retCode":"5102","retMsg":"data update failed","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":nil}"
// @Router /api/v1/instance/{instanceId} [put]
func (controller *InstanceController) UpdateInstance(c *gin.Context) {
	instanceId := c.Param(InstanceIdPath)
	instance, err := repository.Ps.GetInstanceById(instanceId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	var req model.InstanceReq
	if err = model.DecodeRequestBody(c.Request, &req); err != nil {
		controller.wrapfunc(c, model.E_UNMARSHAL_FAILED, err)
		return
	}

	updated := instanceFromReq(req)
	updated.InstanceId = instance.InstanceId
	updated.CreateTime = instance.CreateTime
	updated.UpdateTime = time.Now()
	if err = repository.Ps.UpdateInstance(updated); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_UPDATE_FAILED), err)
		return
	}
	registry.Invalidate(instanceId)

	controller.wrapfunc(c, model.E_SUCCESS, nil)
}

// @Summary DeleteInstance
// @Description Unregister an instance; its backup records stay
// @version 1.0
// @Param instanceId path string true "instance id"
// @Failure 200 {string} json "{"retCode":"5103","retMsg":"data delete failed","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":nil}"
// @Router /api/v1/instance/{instanceId} [delete]
func (controller *InstanceController) DeleteInstance(c *gin.Context) {
	instanceId := c.Param(InstanceIdPath)
	if _, err := repository.Ps.GetInstanceById(instanceId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	if err := repository.Ps.DeleteInstance(instanceId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_DELETE_FAILED), err)
		return
	}
	registry.Invalidate(instanceId)

	controller.wrapfunc(c, model.E_SUCCESS, nil)
}

// @Summary GetInstance
// @Description Get one instance by id
// @version 1.0
// @Param instanceId path string true "instance id"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{}}"
// @Router /api/v1/instance/{instanceId} [get]
func (controller *InstanceController) GetInstance(c *gin.Context) {
	instanceId := c.Param(InstanceIdPath)
	instance, err := repository.Ps.GetInstanceById(instanceId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	maskInstance(&instance)
	controller.wrapfunc(c, model.E_SUCCESS, instance)
}

// @Summary GetAllInstances
// @Description List registered instances
// @version 1.0
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":[]}"
// @Router /api/v1/instance [get]
func (controller *InstanceController) GetAllInstances(c *gin.Context) {
	instances, err := repository.Ps.GetAllInstances()
	if err != nil {
		controller.wrapfunc(c, model.E_DATA_SELECT_FAILED, err)
		return
	}
	if instances == nil {
		instances = []model.Instance{}
	}
	for i := range instances {
		maskInstance(&instances[i])
	}
	controller.wrapfunc(c, model.E_SUCCESS, instances)
}

// @Summary PingInstance
// @Description Check MySQL connectivity of an instance
// @version 1.0
// @Param instanceId path string true "instance id"
// @Failure 200 {string} json "{"retCode":"5203","retMsg":"mysql connect failed","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{"ok":true,"message":"ok"}}"
// @Router /api/v1/instance/{instanceId}/ping [get]
func (controller *InstanceController) PingInstance(c *gin.Context) {
	instanceId := c.Param(InstanceIdPath)
	instance, err := registry.GetInstance(instanceId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	if err = registry.Ping(&instance); err != nil {
		controller.wrapfunc(c, model.E_MYSQL_CONNECT_FAILED, err)
		return
	}
	controller.wrapfunc(c, model.E_SUCCESS, model.ConnectivityResp{OK: true, Message: "ok"})
}

// @Summary ListDatabases
// @Description List the instance's databases, system schemas excluded
// @version 1.0
// @Param instanceId path string true "instance id"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":["orders","users"]}"
// @Router /api/v1/instance/{instanceId}/databases [get]
func (controller *InstanceController) ListDatabases(c *gin.Context) {
	instanceId := c.Param(InstanceIdPath)
	instance, err := registry.GetInstance(instanceId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	databases, err := registry.ListDatabases(&instance)
	if err != nil {
		controller.wrapfunc(c, model.E_MYSQL_CONNECT_FAILED, err)
		return
	}
	if databases == nil {
		databases = []string{}
	}
	controller.wrapfunc(c, model.E_SUCCESS, databases)
}

func instanceFromReq(req model.InstanceReq) model.Instance {
	return model.Instance{
		Alias:         req.Alias,
		Host:          req.Host,
		Port:          req.Port,
		User:          req.User,
		Password:      req.Password,
		DeployMode:    req.DeployMode,
		ContainerName: req.ContainerName,
		ServiceName:   req.ServiceName,
		DataDir:       req.DataDir,
		XtrabackupBin: req.XtrabackupBin,
		SshHost:       req.SshHost,
		SshPort:       req.SshPort,
		SshUser:       req.SshUser,
		SshPassword:   req.SshPassword,
		SshKeyPath:    req.SshKeyPath,
	}
}

// passwords never leave through the API
func maskInstance(instance *model.Instance) {
	if instance.Password != "" {
		instance.Password = "******"
	}
	if instance.SshPassword != "" {
		instance.SshPassword = "******"
	}
}
