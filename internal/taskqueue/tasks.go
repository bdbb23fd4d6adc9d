package taskqueue

import (
	"encoding/json"
	"time"

	"aerofarm/internal/models"

	"github.com/hibiken/asynq"
)

const (
	// TypeRecordAlert inserts a range-breach alert row.
	TypeRecordAlert = "alert:record"
	// TypePruneLogs deletes sensor/actuator log rows past retention.
	TypePruneLogs = "logs:prune"
)

// PrunePayload carries the retention cutoffs for one pruning run.
type PrunePayload struct {
	SensorCutoff   time.Time `json:"sensor_cutoff"`
	ActuatorCutoff time.Time `json:"actuator_cutoff"`
}

// Client enqueues background tasks.
type Client struct {
	asynq *asynq.Client
}

// NewClient connects a task client to the Redis-backed queue.
func NewClient(redisAddr string) *Client {
	return &Client{asynq: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.asynq.Close()
}

// EnqueueAlert queues an alert row insert.
func (c *Client) EnqueueAlert(a models.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeRecordAlert, payload)
	_, err = c.asynq.Enqueue(task, asynq.MaxRetry(3), asynq.Timeout(10*time.Second))
	return err
}

// EnqueuePrune queues one retention pruning run.
func (c *Client) EnqueuePrune(sensorCutoff, actuatorCutoff time.Time) error {
	payload, err := json.Marshal(PrunePayload{SensorCutoff: sensorCutoff, ActuatorCutoff: actuatorCutoff})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypePruneLogs, payload)
	_, err = c.asynq.Enqueue(task, asynq.MaxRetry(2), asynq.Timeout(5*time.Minute))
	return err
}
