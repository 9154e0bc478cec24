// Package mmap maps vector blobs read-only into memory.
//
// On unix the mapping is created with golang.org/x/sys/unix and advised for
// random access, which matches the point lookups of a value store. Other
// platforms fall back to reading the whole file.
package mmap
