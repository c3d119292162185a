package orchestrator

import (
	"fmt"

	"github.com/JaimeStill/vigil/internal/faults"
)

// ErrFileTooLarge rejects uploads over the configured size limit.
var ErrFileTooLarge = fmt.Errorf("%w: file exceeds maximum upload size", faults.ErrValidation)
