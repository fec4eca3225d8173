// Package auth issues and checks API bearer tokens, hashes passwords and
// runs the optional Google sign-in flow.
package auth
