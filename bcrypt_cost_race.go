//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds run the whole suite under the detector, hashing at the
// production cost makes them time out
func passwordHashCost() int {
	return bcrypt.MinCost + 2
}
