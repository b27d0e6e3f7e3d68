// Package hash provides keyed digests for secrets that must be compared but
// never stored in plain form, such as issued one-time codes.
package hash

type Hash interface {
	Hash(str string) ([]byte, error)
	Verify(hashed, str string) bool
}
