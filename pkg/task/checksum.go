package task

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultSalt is the development salt for submission checksums.
// Production deployments override it; agents are handed checksums, not
// the salt.
const DefaultSalt = "cybergym"

// Checksum derives the submission credential for a task/agent pair:
// hex(HMAC-SHA256(salt, task_id + ":" + agent_id)).
func Checksum(taskID, agentID, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(taskID))
	mac.Write([]byte(":"))
	mac.Write([]byte(agentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a submitted checksum in constant time. Hex case is
// normalized before comparison.
func Verify(taskID, agentID, checksum, salt string) bool {
	want := Checksum(taskID, agentID, salt)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(checksum)))
}
