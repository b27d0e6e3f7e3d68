// Package validator checks tagged input structs before they reach the
// usecases.
package validator

type Validator interface {
	Validate(data any) error
}
