package results

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/faults"
)

var tablePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// TableName derives the result table for a task. Each task id yields a
// distinct name, so partitions are never shared or reused.
func TableName(prefix string, id uuid.UUID) string {
	return prefix + strings.ReplaceAll(id.String(), "-", "")
}

// ValidateTable rejects names that are not plain lowercase identifiers.
func ValidateTable(name string) error {
	if !tablePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid result table %q", faults.ErrValidation, name)
	}
	return nil
}
