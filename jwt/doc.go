// Package jwt issues and verifies the optional stateless access tokens.
package jwt
