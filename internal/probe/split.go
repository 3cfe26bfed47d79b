package probe

import (
	"log/slog"
	"strings"

	"github.com/nkazuki-labs/monitor-agent/internal/value"
)

// Split partitions a probed String value on every occurrence of token into a
// Vector, per the split/reduction tail of the probe contract: child count
// equals one plus the number of occurrences of token (a trailing separator
// yields one empty final slot); each token is parsed via value.String, and
// an empty or unparseable token yields an absent child slot. If reduction is
// non-empty and at least one child parsed, the Vector's reduction is set.
//
// Split is only meaningful for String probe results; callers should not
// invoke it on a Number (there is nothing to partition).
func Split(raw string, token string, reduction string, logger *slog.Logger) *value.Value {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopDiscard{}, nil))
	}

	parts := strings.Split(raw, token)
	children := make([]*value.Value, len(parts))
	for i, p := range parts {
		if p == "" {
			continue
		}
		v := value.String(p)
		if _, ok := v.Float(); !ok {
			continue
		}
		children[i] = v
	}

	var red *value.Value
	if reduction != "" {
		r, ok := value.ParseReduction(reduction)
		if !ok {
			logger.Warn("probe: unknown split reduction, skipping", "reduction", reduction)
		} else {
			red = value.Reduce(children, r)
		}
	}

	return value.Vector(children, red)
}
