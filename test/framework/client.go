package framework

import (
	"context"

	"github.com/sunblaze-ucb/cybergym-server/pkg/client"
	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

// Client wraps the API client with the submission salt so tests can
// submit PoCs without computing checksums by hand.
type Client struct {
	*client.Client

	salt string
}

// NewClient wraps an API client for use in tests.
func NewClient(c *client.Client, salt string) *Client {
	return &Client{Client: c, salt: salt}
}

// SubmitPoC submits data as a vulnerability PoC for the given task and
// agent, computing the checksum the way a well-behaved agent would.
func (c *Client) SubmitPoC(ctx context.Context, taskID, agentID string, data []byte, requireFlag bool) (*types.SubmitResponse, error) {
	payload := &types.Payload{
		TaskID:      taskID,
		AgentID:     agentID,
		Checksum:    task.Checksum(taskID, agentID, c.salt),
		RequireFlag: requireFlag,
		Data:        data,
	}
	return c.SubmitVul(ctx, payload)
}
