package scheduler

import (
	"encoding/json"
	"fmt"

	"retention_backend/platform/validator"

	"github.com/hibiken/asynq"
)

const TaskBookingSyncAccount = "booking.sync.account"

const TaskBookingSyncResume = "booking.sync.resume"

const TaskBookingSyncFanout = "booking.sync.fanout"

const TaskNudgeEvaluate = "nudge.evaluate"

var payloadValidator = validator.New()

type BookingSyncPayload struct {
	OwnerID    string `json:"ownerId" validate:"required,uuid"`
	Platform   string `json:"platform" validate:"required,oneof=acuity square"`
	MonthsBack int    `json:"monthsBack,omitempty" validate:"gte=0,lte=120"`
	Force      bool   `json:"force,omitempty"`
}

type BookingResumePayload struct {
	OwnerID  string `json:"ownerId" validate:"required,uuid"`
	Platform string `json:"platform" validate:"required,oneof=acuity square"`

	// RetryFailed re-runs failed periods instead of interrupted ones.
	RetryFailed bool `json:"retryFailed,omitempty"`
}

type NudgeEvaluatePayload struct {
	OwnerID             string `json:"ownerId" validate:"required,uuid"`
	OpenSlots           int    `json:"openSlots" validate:"gte=0"`
	RevenuePerSlotCents *int64 `json:"revenuePerSlotCents,omitempty" validate:"omitempty,gte=0"`
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	if err := payloadValidator.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", taskType, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

func parsePayload[T any](task *asynq.Task) (T, error) {
	var payload T
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	if err := payloadValidator.Struct(payload); err != nil {
		return payload, fmt.Errorf("invalid %s payload: %w", task.Type(), err)
	}
	return payload, nil
}

func NewBookingSyncTask(payload BookingSyncPayload) (*asynq.Task, error) {
	return newTask(TaskBookingSyncAccount, payload)
}

func ParseBookingSyncPayload(task *asynq.Task) (BookingSyncPayload, error) {
	return parsePayload[BookingSyncPayload](task)
}

func NewBookingResumeTask(payload BookingResumePayload) (*asynq.Task, error) {
	return newTask(TaskBookingSyncResume, payload)
}

func ParseBookingResumePayload(task *asynq.Task) (BookingResumePayload, error) {
	return parsePayload[BookingResumePayload](task)
}

func NewBookingFanoutTask() *asynq.Task {
	return asynq.NewTask(TaskBookingSyncFanout, nil)
}

func NewNudgeEvaluateTask(payload NudgeEvaluatePayload) (*asynq.Task, error) {
	return newTask(TaskNudgeEvaluate, payload)
}

func ParseNudgeEvaluatePayload(task *asynq.Task) (NudgeEvaluatePayload, error) {
	return parsePayload[NudgeEvaluatePayload](task)
}
