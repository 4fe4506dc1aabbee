package runner

import (
	"strconv"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
)

// parseDelay reads a delay node's duration configuration. Unit is one of
// minutes, hours, or days (default days); a missing or non-numeric duration
// defaults to 1 unit. Bad configuration degrades to a short delay instead of
// failing the run.
func parseDelay(node *models.Node) time.Duration {
	quantity := 1.0

	switch v := node.Data["duration"].(type) {
	case float64:
		quantity = v
	case int:
		quantity = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err == nil {
			quantity = parsed
		}
	}

	if quantity < 0 {
		quantity = 1
	}

	var unit time.Duration

	switch node.StringData("unit") {
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	default:
		unit = 24 * time.Hour
	}

	return time.Duration(quantity * float64(unit))
}
