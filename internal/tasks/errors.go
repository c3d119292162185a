package tasks

import (
	"fmt"

	"github.com/JaimeStill/vigil/internal/faults"
)

// Domain errors for task registry operations.
var (
	ErrNotFound  = fmt.Errorf("%w: task", faults.ErrNotFound)
	ErrDuplicate = fmt.Errorf("%w: task already exists", faults.ErrValidation)
	ErrConflict  = fmt.Errorf("%w: task status changed concurrently", faults.ErrInvalidState)
)
