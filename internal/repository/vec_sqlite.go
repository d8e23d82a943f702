//go:build sqlite_vec && cgo

package repository

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers sqlite-vec as an auto-loaded extension for every new connection,
	// including the ones opened by the gorm sqlite driver.
	vec.Auto()
	vectorSQL = true
}
