// Package manifest defines the normalized package model: the kind tagged
// union, dependency lists, name validation, and apm.yml parsing.
package manifest
