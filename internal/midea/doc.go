// Package midea holds the protocol constants, application profiles and
// error taxonomy shared by every other package in this module.
package midea
