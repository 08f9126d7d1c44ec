package games

import "errors"

// Sentinel kinds for game file errors.
var (
	ErrReadGames = errors.New("read games")
	ErrBadRecord = errors.New("bad game record")
)
