// Package schemas holds the JSON Schema documents shipped with the binary.
package schemas

import "embed"

// Files contains every *.schema.json in this directory.
//
//go:embed *.schema.json
var Files embed.FS

// Read returns the named schema document.
func Read(name string) ([]byte, error) {
	return Files.ReadFile(name)
}
