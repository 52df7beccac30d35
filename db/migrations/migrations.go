package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Script returns every migration in file name order as one script.
func Script() (string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return "", fmt.Errorf("migrations.Script: %w", err)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("migrations.Script: %s: %w", name, err)
		}
		b.Write(data)
		b.WriteString("\n")
	}

	return b.String(), nil
}
