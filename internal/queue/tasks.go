package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/imagekiln/imagekiln/internal/domain"
)

const TypeTransformImage = "image:transform"

type TransformImagePayload struct {
	ImageID      string               `json:"image_id"`
	UserID       string               `json:"user_id"`
	SourceType   string               `json:"source_type"`
	ObjectKey    string               `json:"object_key"`
	OriginalName string               `json:"original_name,omitempty"`
	WebhookURL   string               `json:"webhook_url,omitempty"`
	Spec         domain.TransformSpec `json:"spec"`
	RequestedAt  time.Time            `json:"requested_at"`
}

func NewTransformImageTask(payload TransformImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal transform payload: %w", err)
	}
	return asynq.NewTask(TypeTransformImage, body), nil
}

func ParseTransformImagePayload(task *asynq.Task) (TransformImagePayload, error) {
	var payload TransformImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TransformImagePayload{}, fmt.Errorf("unmarshal transform payload: %w", err)
	}
	return payload, nil
}
