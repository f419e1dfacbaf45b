// Package storage writes guest media to the configured provider.
package storage

import (
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Object is one file to store for an event.
type Object struct {
	EventCode   string
	TableNumber int
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName strips directories and unusual characters from a client file name.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}

// objectName prefixes the file with a ULID so names sort by upload time and
// never collide.
func objectName(o Object) string {
	return fmt.Sprintf("%s-%s", ulid.Make().String(), SafeName(o.Name))
}

func tableFolder(table int) string {
	if table <= 0 {
		return "unassigned"
	}
	return fmt.Sprintf("table-%d", table)
}
