// Package client is the Go client for the submission API.
//
// # Usage
//
//	c := client.NewClient("http://127.0.0.1:8666",
//		client.WithAPIKey(key))
//
//	resp, err := c.SubmitVul(ctx, &types.Payload{
//		TaskID:   "arvo:10400",
//		AgentID:  agentID,
//		Checksum: task.Checksum("arvo:10400", agentID, salt),
//		Data:     pocBytes,
//	})
//
// SubmitVul needs no key; SubmitFix, Query and VerifyAgent hit the
// operator endpoints and require one. The default HTTP client has no
// timeout because a submission blocks while its container runs —
// bound calls with the context instead.
//
// Server-side failures come back as *types.HTTPError carrying the
// status code and the detail string from the error envelope, so
// callers can match on messages like "Invalid checksum".
package client
