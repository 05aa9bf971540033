// Package config defines deadline enforcement settings and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type holds the default time limit, the enforcement method
// and the abort exit status. Environment variables overlay the file so
// deployments can tighten limits without editing settings.
package config
