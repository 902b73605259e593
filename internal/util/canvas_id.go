package util

// Canvas installations behind a shard return long-form ids: the shard prefix
// followed by the canonical id left-padded with zeros to thirteen digits.
// Local lookups always key off the short form.
const (
	canvasShardPrefix = "7236"
	canvasLocalDigits = 13
)

// NormalizeCanvasID strips the shard prefix and zero padding from a long-form
// Canvas id. Ids that do not match the long-form pattern are returned
// unchanged, which makes the function idempotent.
func NormalizeCanvasID(id string) string {
	if len(id) != len(canvasShardPrefix)+canvasLocalDigits {
		return id
	}
	if id[:len(canvasShardPrefix)] != canvasShardPrefix {
		return id
	}
	rest := id[len(canvasShardPrefix):]
	for _, r := range rest {
		if r < '0' || r > '9' {
			return id
		}
	}
	i := 0
	for i < len(rest)-1 && rest[i] == '0' {
		i++
	}
	return rest[i:]
}
