// Package pathutil provides the two pure string operations the resolver
// needs to walk an absolute path one component at a time. Neither
// function normalizes its input: "." and ".." are left untouched, and
// repeated slashes collapse only insofar as strings.LastIndexByte does.
package pathutil

import "strings"

// Parent returns the substring of p up to, but not including, the last
// "/". Parent("/") returns "/". If p contains no "/" at all, ok is
// false and the returned string is empty — the caller has no parent to
// resolve.
func Parent(p string) (parent string, ok bool) {
	if p == "/" {
		return "/", true
	}

	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", false
	}

	parent = p[:i]
	if parent == "" {
		parent = "/"
	}
	return parent, true
}

// Basename returns the substring of p after the last "/", or all of p
// if it contains none.
func Basename(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return p
	}
	return p[i+1:]
}
