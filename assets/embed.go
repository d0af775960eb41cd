// Package assets embeds the files shipped inside the binaries.
package assets

import "embed"

//go:embed common-passwords.txt.gz migrations all:templates
var FS embed.FS

const (
	CommonPasswordsPath = "common-passwords.txt.gz"
	EmailTemplatesDir   = "templates/email"
)

// MigrationsDir returns the migrations directory of the given database engine.
func MigrationsDir(engine string) string {
	return "migrations/" + engine
}
