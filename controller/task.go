package controller

import (
	"fmt"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-basic/uuid"

	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
)

const (
	TaskIdPath = "taskId"
)

type TaskController struct {
	Controller
}

func NewTaskController(wrapfunc Wrapfunc) *TaskController {
	return &TaskController{
		Controller: Controller{
			wrapfunc: wrapfunc,
		},
	}
}

// @Summary CreateTask
// @Description Schedule a one-off backup at a fixed time
// @version 1.0
// @Param req body model.OneOffTaskReq true "request body"
// @Failure 200 {string} json "{"retCode":"5000","retMsg":"invalid params","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":"608e9e83-715e-7448-a149-9bef33f38cfe"}"
// @Router /api/v1/task [post]
func (controller *TaskController) CreateTask(c *gin.Context) {
	var req model.OneOffTaskReq
	if err := model.DecodeRequestBody(c.Request, &req); err != nil {
		controller.wrapfunc(c, model.E_UNMARSHAL_FAILED, err)
		return
	}
	if req.InstanceId == "" {
		err := fmt.Errorf("instance_id must not be empty")
		controller.wrapfunc(c, model.E_INVALID_PARAMS, err)
		return
	}
	switch req.BackupType {
	case model.BackupTypeFull, model.BackupTypeHot, model.BackupTypeIncremental, model.BackupTypeCold:
	default:
		err := fmt.Errorf("unknown backup type %s", req.BackupType)
		controller.wrapfunc(c, model.E_INVALID_PARAMS, err)
		return
	}
	if _, err := repository.Ps.GetInstanceById(req.InstanceId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}

	now := time.Now()
	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = now
	}
	task := model.OneOffTask{
		TaskId:     uuid.New(),
		Name:       req.Name,
		InstanceId: req.InstanceId,
		BackupType: req.BackupType,
		RunAt:      runAt,
		Storage:    req.Storage,
		Databases:  req.Databases,
		Compress:   req.Compress,
		Status:     model.TaskStatusPending,
		CreateTime: now,
		UpdateTime: now,
	}
	if err := repository.Ps.CreateTask(task); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_INSERT_FAILED), err)
		return
	}

	controller.wrapfunc(c, model.E_SUCCESS, task.TaskId)
}

// @Summary GetTask
// @Description Get one task by id
// @version 1.0
// @Param taskId path string true "task id"
// @Failure 200 {string} json "{"retCode":"5104","retMsg":"data select failed","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{}}"
// @Router /api/v1/task/{taskId} [get]
func (controller *TaskController) GetTask(c *gin.Context) {
	taskId := c.Param(TaskIdPath)
	if taskId == "" {
		err := fmt.Errorf("expect taskId but got null")
		controller.wrapfunc(c, model.E_INVALID_PARAMS, err)
		return
	}
	task, err := repository.Ps.GetTaskById(taskId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	controller.wrapfunc(c, model.E_SUCCESS, task)
}

// @Summary TasksList
// @Description List one-off tasks, most recently updated first
// @version 1.0
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":[]}"
// @Router /api/v1/task [get]
func (controller *TaskController) TasksList(c *gin.Context) {
	tasks, err := repository.Ps.GetAllTasks()
	if err != nil {
		controller.wrapfunc(c, model.E_DATA_SELECT_FAILED, err)
		return
	}
	if tasks == nil {
		tasks = []model.OneOffTask{}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].UpdateTime.After(tasks[j].UpdateTime)
	})
	controller.wrapfunc(c, model.E_SUCCESS, tasks)
}

// @Summary DeleteTask
// @Description Delete a task; running tasks can't be deleted
// @version 1.0
// @Param taskId path string true "task id"
// @Failure 200 {string} json "{"retCode":"5103","retMsg":"data delete failed","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":nil}"
// @Router /api/v1/task/{taskId} [delete]
func (controller *TaskController) DeleteTask(c *gin.Context) {
	taskId := c.Param(TaskIdPath)
	task, err := repository.Ps.GetTaskById(taskId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	if task.Status == model.TaskStatusRunning {
		err := fmt.Errorf("can't delete a running task")
		controller.wrapfunc(c, model.E_DATA_MISMATCHED, err)
		return
	}

	if err := repository.Ps.DeleteTask(taskId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_DELETE_FAILED), err)
		return
	}

	controller.wrapfunc(c, model.E_SUCCESS, nil)
}

// @Summary CancelTask
// @Description Cancel a pending task before the runner picks it up
// @version 1.0
// @Param taskId path string true "task id"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":nil}"
// @Router /api/v1/task/{taskId}/cancel [put]
func (controller *TaskController) CancelTask(c *gin.Context) {
	taskId := c.Param(TaskIdPath)
	task, err := repository.Ps.GetTaskById(taskId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	if task.Status != model.TaskStatusPending {
		err := fmt.Errorf("can't cancel task while status is %s", task.Status)
		controller.wrapfunc(c, model.E_DATA_MISMATCHED, err)
		return
	}

	task.Status = model.TaskStatusCanceled
	task.UpdateTime = time.Now()
	if err := repository.Ps.UpdateTask(task); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_UPDATE_FAILED), err)
		return
	}

	controller.wrapfunc(c, model.E_SUCCESS, nil)
}
