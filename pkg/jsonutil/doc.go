/*
Package jsonutil implements the canonical JSON form used for change
detection.

Two mirrored documents are "the same" when their canonical encodings are
byte-equal. The canonical form sorts object keys lexicographically,
preserves array order, drops null-valued object members (so a key that is
absent in one document and explicitly null in the other compares equal),
and passes numbers through verbatim to avoid float reformatting of
millisecond timestamps and repository ids.

The worker uses Equal to decide whether persisting an issue warrants a
ResourceChangeEvent. The guarantee that two full scans over identical
upstream data emit no change events rests entirely on this package.

# Usage

	same, err := jsonutil.Equal(previousIssue, newIssue)
	if err != nil {
		return err
	}
	if !same {
		// append a ResourceChangeEvent
	}

Canonicalize operates on raw JSON bytes, CanonicalizeValue on any
marshalable value. Both return an error for JSON that parses to a value
outside the object/array/string/number/bool/null set, which cannot occur
for documents produced by encoding/json.
*/
package jsonutil
