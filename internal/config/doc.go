// Package config holds the typed configuration of each loanpipe process
// and the parsers for its list-valued options.
package config
