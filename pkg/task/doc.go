/*
Package task resolves task identifiers and verifies submission
checksums.

Task identifiers name a reproducible vulnerability as "<kind>:<name>".
Three kinds exist: arvo (ARVO corpus), oss-fuzz (fixed-revision
OSS-Fuzz builds), and oss-fuzz-latest (rolling builds of a project's
current revision, identified as "<project>-<index>"). The package maps
a parsed identifier to the container image and reproduction command the
runner needs, and implements the salted checksum handed to agents as
their per-task submission credential.

# Task Resolution

	┌─────────────────────────────────────────────────────┐
	│  "arvo:10400"                                       │
	│     image:   n132/arvo:10400-{vul|fix}              │
	│     command: /bin/arvo                              │
	│                                                     │
	│  "oss-fuzz:42"                                      │
	│     image:   cybergym/oss-fuzz:42-{vul|fix}         │
	│     command: /usr/local/bin/run_poc                 │
	│                                                     │
	│  "oss-fuzz-latest:libxml2-3"                        │
	│     image:   cybergym/oss-fuzz-base-runner          │
	│     target:  fuzz_targets[3] of project libxml2     │
	│     (vul only; fix builds do not exist)             │
	└─────────────────────────────────────────────────────┘

Parsing only validates the kind prefix and a non-empty name. Whether a
name resolves to an actual build is discovered when the runner looks up
the image or the build tree, matching the submission flow: a record is
persisted before its task is resolved.

# Checksums

An agent may only submit PoCs for task/agent pairs it was credentialed
for. The credential is hex(HMAC-SHA256(salt, task_id + ":" + agent_id)).
Checksum mints one; Verify checks one in constant time. The salt stays
on the server side.

# Usage

	id, err := task.Parse("arvo:10400")
	if err != nil {
		return err // 400 Invalid task_id
	}
	image := id.Image(types.ModeVul) // n132/arvo:10400-vul

	if !task.Verify(payload.TaskID, payload.AgentID, payload.Checksum, salt) {
		return types.NewHTTPError(400, "Invalid checksum")
	}

# See Also

  - pkg/runtime: consumes images, commands, and project splits
  - pkg/manager: verifies checksums before any disk or DB write
*/
package task
