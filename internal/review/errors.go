package review

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"

	"github.com/JaimeStill/vigil/internal/faults"
)

// Domain errors for review provisioning.
var (
	ErrNoWorkteam = fmt.Errorf("%w: no review workteam could be discovered or created", faults.ErrProvisioning)
	ErrNoUI       = fmt.Errorf("%w: human task ui not found", faults.ErrProvisioning)
)

func isNotFound(err error) bool {
	var nf *types.ResourceNotFound
	return errors.As(err, &nf)
}

func isInUse(err error) bool {
	var inUse *types.ResourceInUse
	return errors.As(err, &inUse)
}
