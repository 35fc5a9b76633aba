package controller

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-basic/uuid"
	"github.com/imdario/mergo"
	"github.com/robfig/cron/v3"

	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
	svccron "github.com/dbguardian/dbguardian/service/cron"
)

const (
	StrategyIdPath = "strategyId"
)

type StrategyController struct {
	Controller
}

func NewStrategyController(wrapfunc Wrapfunc) *StrategyController {
	return &StrategyController{
		Controller: Controller{
			wrapfunc: wrapfunc,
		},
	}
}

// @Summary CreateStrategy
// @Description Create a scheduled backup strategy
// @version 1.0
// @Param req body model.StrategyReq true "request body"
// @Failure 200 {string} json "{"retCode":"5000","retMsg":"invalid params","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":"c01528bd-4f02-11ee-9d3f-0242ac110002"}"
// @Router /api/v1/strategy [post]
func (controller *StrategyController) CreateStrategy(c *gin.Context) {
	var req model.StrategyReq
	if err := model.DecodeRequestBody(c.Request, &req); err != nil {
		controller.wrapfunc(c, model.E_UNMARSHAL_FAILED, err)
		return
	}
	if err := validateStrategyReq(req); err != nil {
		controller.wrapfunc(c, model.E_INVALID_PARAMS, err)
		return
	}
	if _, err := repository.Ps.GetInstanceById(req.InstanceId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}

	now := time.Now()
	strategy := strategyFromReq(req)
	strategy.StrategyId = uuid.New()
	strategy.CreateTime = now
	strategy.UpdateTime = now
	if err := repository.Ps.CreateStrategy(strategy); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_INSERT_FAILED), err)
		return
	}
	syncStrategySchedules()

	controller.wrapfunc(c, model.E_SUCCESS, strategy.StrategyId)
}

// @Summary UpdateStrategy
// @Description Update a strategy; omitted fields keep their stored values
// @version 1.0
// @Param strategyId path string true "strategy id"
// @Param req body model.StrategyReq true "request body"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":nil}"
// @Router /api/v1/strategy/{strategyId} [put]
func (controller *StrategyController) UpdateStrategy(c *gin.Context) {
	strategyId := c.Param(StrategyIdPath)
	strategy, err := repository.Ps.GetStrategyById(strategyId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	var req model.StrategyReq
	if err = model.DecodeRequestBody(c.Request, &req); err != nil {
		controller.wrapfunc(c, model.E_UNMARSHAL_FAILED, err)
		return
	}

	// fields left zero in the request fall back to the stored strategy;
	// flipping Enabled off goes through the enable endpoint
	updated := strategyFromReq(req)
	updated.StrategyId = strategy.StrategyId
	if err = mergo.Merge(&updated, strategy); err != nil {
		controller.wrapfunc(c, model.E_DATA_MISMATCHED, err)
		return
	}
	updated.UpdateTime = time.Now()
	if _, err = cron.ParseStandard(updated.CronExpr); err != nil {
		controller.wrapfunc(c, model.E_INVALID_PARAMS, err)
		return
	}
	if err = repository.Ps.UpdateStrategy(updated); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_UPDATE_FAILED), err)
		return
	}
	syncStrategySchedules()

	controller.wrapfunc(c, model.E_SUCCESS, nil)
}

// @Summary DeleteStrategy
// @Description Delete a strategy; past records of it stay
// @version 1.0
// @Param strategyId path string true "strategy id"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":nil}"
// @Router /api/v1/strategy/{strategyId} [delete]
func (controller *StrategyController) DeleteStrategy(c *gin.Context) {
	strategyId := c.Param(StrategyIdPath)
	if _, err := repository.Ps.GetStrategyById(strategyId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	if err := repository.Ps.DeleteStrategy(strategyId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_DELETE_FAILED), err)
		return
	}
	syncStrategySchedules()

	controller.wrapfunc(c, model.E_SUCCESS, nil)
}

// @Summary GetStrategy
// @Description Get one strategy by id
// @version 1.0
// @Param strategyId path string true "strategy id"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{}}"
// @Router /api/v1/strategy/{strategyId} [get]
func (controller *StrategyController) GetStrategy(c *gin.Context) {
	strategyId := c.Param(StrategyIdPath)
	strategy, err := repository.Ps.GetStrategyById(strategyId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	maskStrategy(&strategy)
	controller.wrapfunc(c, model.E_SUCCESS, strategy)
}

// @Summary GetAllStrategies
// @Description List backup strategies
// @version 1.0
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":[]}"
// @Router /api/v1/strategy [get]
func (controller *StrategyController) GetAllStrategies(c *gin.Context) {
	strategies, err := repository.Ps.GetAllStrategies()
	if err != nil {
		controller.wrapfunc(c, model.E_DATA_SELECT_FAILED, err)
		return
	}
	if strategies == nil {
		strategies = []model.BackupStrategy{}
	}
	for i := range strategies {
		maskStrategy(&strategies[i])
	}
	controller.wrapfunc(c, model.E_SUCCESS, strategies)
}

// @Summary EnableStrategy
// @Description Enable or disable a strategy
// @version 1.0
// @Param strategyId path string true "strategy id"
// @Param enabled query string true "true or false"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":nil}"
// @Router /api/v1/strategy/{strategyId}/enable [put]
func (controller *StrategyController) EnableStrategy(c *gin.Context) {
	strategyId := c.Param(StrategyIdPath)
	strategy, err := repository.Ps.GetStrategyById(strategyId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	strategy.Enabled = c.Query("enabled") == "true"
	strategy.UpdateTime = time.Now()
	if err = repository.Ps.UpdateStrategy(strategy); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_UPDATE_FAILED), err)
		return
	}
	syncStrategySchedules()

	controller.wrapfunc(c, model.E_SUCCESS, nil)
}

func validateStrategyReq(req model.StrategyReq) error {
	if req.InstanceId == "" {
		return fmt.Errorf("instance_id must not be empty")
	}
	switch req.BackupType {
	case model.BackupTypeFull, model.BackupTypeHot, model.BackupTypeIncremental, model.BackupTypeCold:
	default:
		return fmt.Errorf("unknown backup type %s", req.BackupType)
	}
	if _, err := cron.ParseStandard(req.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %v", req.CronExpr, err)
	}
	return nil
}

func strategyFromReq(req model.StrategyReq) model.BackupStrategy {
	return model.BackupStrategy{
		Name:          req.Name,
		InstanceId:    req.InstanceId,
		BackupType:    req.BackupType,
		CronExpr:      req.CronExpr,
		RetentionDays: req.RetentionDays,
		Enabled:       req.Enabled,
		Storage:       req.Storage,
		Databases:     req.Databases,
		Compress:      req.Compress,
	}
}

func maskStrategy(strategy *model.BackupStrategy) {
	if strategy.Storage.Remote.Password != "" {
		strategy.Storage.Remote.Password = "******"
	}
	if strategy.Storage.OSS.SecretAccessKey != "" {
		strategy.Storage.OSS.SecretAccessKey = "******"
	}
}

// syncStrategySchedules pushes the change into the scheduler right away
// instead of waiting for the next cron sync.
func syncStrategySchedules() {
	if err := svccron.SyncStrategies(); err != nil {
		log.Logger.Warnf("strategy schedule sync failed: %v", err)
	}
}
