package impl

import (
	"golang.org/x/xerrors"
)

// ErrAggregation is returned when the answer of a request could not be
// assembled, either because a response never came or because it was
// unusable.
var ErrAggregation = xerrors.New("aggregation failed")

// RemoteError is a response code the node does not know.
type RemoteError struct {
	code string
}

func (re *RemoteError) Error() string {
	return "RemoteError: " + re.code
}
