// Package otp generates numeric one-time codes from a cryptographically
// secure source.
//
// Digits are drawn by rejection sampling so every code in the space
// ("000000" to "999999" for length 6) is equally likely.
package otp
