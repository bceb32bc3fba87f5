package domain

import "errors"

// Domain errors shared across the deployment pipeline.
var (
	ErrMissingConfig     = errors.New("missing required configuration")
	ErrModulePathMissing = errors.New("module path not configured in MDS.MODULES")
	ErrSASLogErrors      = errors.New("SAS log contains ERROR lines")
)
