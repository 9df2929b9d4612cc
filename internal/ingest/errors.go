package ingest

import (
	"errors"
	"fmt"
)

// ErrLayoutInvalid is returned when a source descriptor cannot be
// resolved into a typed layout: malformed markers, a Master source
// without any `(node N)` or `(profession)` column, or a Customer source
// without exactly one `(profession)` column.
var ErrLayoutInvalid = errors.New("layout invalid")

// ErrNAChainInvalid is returned when gap filling is asked for a level
// outside [0, max depth] or a start at or beyond the target.
var ErrNAChainInvalid = errors.New("placeholder chain invalid")

// ErrBadEvent is returned for ingestion events the pipeline cannot
// interpret (unknown source, unparsable object key, missing payload).
var ErrBadEvent = errors.New("bad ingestion event")

// RowError records one failed source row. Recoverable: the row is
// marked failed in Bronze, the error lands in the load's provenance,
// and the load continues under the default failure policy.
type RowError struct {
	RowID int64  `json:"row_id"`
	Err   string `json:"error"`
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d: %s", e.RowID, e.Err)
}
