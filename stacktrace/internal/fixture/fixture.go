// Package fixture raises errors from outside the packages that test stack trimming.
package fixture

import (
	"gitlab.com/tozd/go/errors"
)

// Thrower is the type whose package tests trim
type Thrower struct{}

// Fail returns an error raised two calls deep inside this package.
//
//go:noinline
func (Thrower) Fail(msg string) errors.E {
	return raise(msg)
}

// Call runs fn from inside this package. When fn calls Fail, the error's
// stack holds fixture frames both above and below fn's frame.
//
//go:noinline
func (t Thrower) Call(fn func() errors.E) errors.E {
	return fn()
}

//go:noinline
func raise(msg string) errors.E {
	return errors.New(msg)
}
