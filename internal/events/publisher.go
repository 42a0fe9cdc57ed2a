// Package events publishes deployment lifecycle events to an AMQP exchange
// so other portal services can react to triggered deployments.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cheshir/go-mq"
	"github.com/matryer/try"
)

const exchangeName = "portal-deployments"

// Broker holds the connection details for the rabbitmq host.
type Broker struct {
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// DeploymentTriggered is emitted after a deployment workflow was dispatched.
type DeploymentTriggered struct {
	ComponentName   string    `json:"componentName"`
	EnvironmentName string    `json:"environmentName"`
	GithubRepo      string    `json:"githubRepo"`
	Version         string    `json:"version,omitempty"`
	WorkflowID      int64     `json:"workflowId"`
	WorkflowRunURL  string    `json:"workflowRunUrl,omitempty"`
	TriggeredAt     time.Time `json:"triggeredAt"`
}

// Publisher owns the message queue connection used to emit events.
type Publisher struct {
	messageQueue mq.MQ
	logger       *slog.Logger
}

// NewPublisher connects to the broker, retrying a few times before giving up.
// Default is 10 retries with a 30 second delay = 5 minutes.
func NewPublisher(broker Broker, connectionAttempts, connectionRetryInterval int, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config := mq.Config{
		ReconnectDelay: time.Duration(connectionRetryInterval) * time.Second,
		Exchanges: mq.Exchanges{
			{
				Name: exchangeName,
				Type: "direct",
				Options: mq.Options{
					"durable":       true,
					"delivery_mode": "2",
					"headers":       "",
					"content_type":  "",
				},
			},
		},
		Producers: mq.Producers{
			{
				Name:     exchangeName,
				Exchange: exchangeName,
				Options: mq.Options{
					"delivery_mode": "2",
					"headers":       "",
					"content_type":  "",
				},
			},
		},
		DSN: fmt.Sprintf("amqp://%s:%s@%s:%s/", broker.Username, broker.Password, broker.Hostname, broker.Port),
	}

	var messageQueue mq.MQ
	err := try.Do(func(attempt int) (bool, error) {
		var err error
		messageQueue, err = mq.New(config)
		if err != nil {
			logger.Error("Failed to initialize message queue manager, retrying",
				"error", err.Error(),
				"attempt", attempt,
				"attempts", connectionAttempts,
				"retryInterval", connectionRetryInterval,
			)
			time.Sleep(time.Duration(connectionRetryInterval) * time.Second)
		}
		return attempt < connectionAttempts, err
	})
	if err != nil {
		return nil, fmt.Errorf("finally failed to initialize message queue manager: %w", err)
	}

	go func() {
		for err := range messageQueue.Error() {
			logger.Error("Caught error from message queue", "error", err.Error())
		}
	}()

	return &Publisher{
		messageQueue: messageQueue,
		logger:       logger,
	}, nil
}

// PublishDeploymentTriggered sends the event to the deployments exchange.
func (p *Publisher) PublishDeploymentTriggered(event DeploymentTriggered) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("unable to encode event as JSON: %w", err)
	}

	producer, err := p.messageQueue.AsyncProducer(exchangeName)
	if err != nil {
		return fmt.Errorf("failed to get async producer: %w", err)
	}
	producer.Produce(msgBytes)

	p.logger.Debug("published deployment event",
		"component", event.ComponentName,
		"environment", event.EnvironmentName,
	)
	return nil
}

// Close shuts down the queue connection.
func (p *Publisher) Close() {
	p.messageQueue.Close()
}
