package results

import (
	"errors"
	"fmt"

	"github.com/JaimeStill/vigil/internal/faults"
)

// Domain errors for result store operations.
var (
	ErrNotFound        = fmt.Errorf("%w: item result", faults.ErrNotFound)
	ErrAlreadyReviewed = fmt.Errorf("%w: item already reviewed", faults.ErrInvalidState)
	errDuplicate       = errors.New("duplicate item result")
)
