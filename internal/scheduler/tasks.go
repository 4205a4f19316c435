package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskVisaDeadlineCancel = "visas.deadline_cancel"

type VisaDeadlineCancelPayload struct {
	VisaID string `json:"visaId"`
}

func NewVisaDeadlineCancelTask(payload VisaDeadlineCancelPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVisaDeadlineCancel, data), nil
}

func ParseVisaDeadlineCancelPayload(task *asynq.Task) (VisaDeadlineCancelPayload, error) {
	var payload VisaDeadlineCancelPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return VisaDeadlineCancelPayload{}, err
	}
	return payload, nil
}
