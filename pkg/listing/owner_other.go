//go:build !unix

package listing

import "io/fs"

// Windows and plan9 expose no uid/gid pair through FileInfo.Sys.
func ownership(info fs.FileInfo) (owner, group string, links int) {
	return "-", "-", 1
}
