/*
Package blob stores PoC artifacts on the local filesystem.

Every accepted submission owns one directory keyed by its PoC ID, fanned
out over two levels so no single directory accumulates every record:

	<log_dir>/
	└── ab/
	    └── 12/
	        └── ab12cd34…/
	            ├── poc.bin      submitted bytes, exactly as uploaded
	            ├── output.vul   captured output of the vul run
	            └── output.fix   captured output of the fix run

PoC IDs are 32 lowercase hex characters minted by the coordinator, so
the two-level fan-out gives 65536 leaf buckets.

Writes are whole-file and idempotent: resubmitting identical bytes lands
on the identical content. Reads are deliberately forgiving — a missing
or undecodable output file reads as the empty string, because stored
output is advisory context for agents, not state the system depends on.

# Usage

	blobs, err := blob.New(cfg.LogDir)
	...
	path, err := blobs.WritePoC(pocID, payload.Data)  // → …/poc.bin
	err = blobs.WriteOutput(pocID, types.ModeVul, out)
	text := blobs.ReadOutput(pocID, types.ModeVul)    // "" if absent

# See Also

  - pkg/manager: the only writer; decides when runs produce output
  - pkg/runtime: consumes PoCPath as the container bind-mount source
*/
package blob
