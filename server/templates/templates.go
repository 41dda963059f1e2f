// Package templates embeds the HTML page templates
package templates

import "embed"

//go:embed *.html
var FS embed.FS
