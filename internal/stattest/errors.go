package stattest

import "errors"

var (
	errTooShort             = errors.New("series too short for candidate order")
	errDegenerateCovariance = errors.New("residual covariance is degenerate")
)
