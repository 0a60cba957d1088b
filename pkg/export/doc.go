// Package export serializes the grid hierarchy and layout into the JSON
// documents consumed by downstream collaborators (the web viewer and the
// board uploader).
//
// Every document is deterministic: cell entries are keyed "col,row" in a
// map, and encoding/json sorts map keys, so re-exporting unchanged input
// produces byte-identical files. Writes are atomic (temp file + rename)
// so a crashed run never leaves a truncated document behind, and
// documents above a configurable size limit are split into _partN files
// along the sorted key order.
package export
