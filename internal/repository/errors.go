package repository

import "errors"

// ErrStaleVersion reports that an optimistic update lost the race: the
// row's version no longer matches the one read. Callers re-read and
// decide whether the conflicting write already did their work.
var ErrStaleVersion = errors.New("stale version")
