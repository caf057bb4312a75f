// Package source reads loan requests from a file and submits them to the
// dispatcher one after another.
//
// A request file has one request per line:
//
//	KIND,isbn[,user]
//
// KIND is BORROW, RENEW or RETURN (case-insensitive; the legacy names
// PRESTAMO, RENOVACION and DEVOLUCION are accepted). A missing user becomes
// UNKNOWN. Blank lines and lines starting with # are ignored.
package source
