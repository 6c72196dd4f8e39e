// Package template renders dotfile sources that carry the .tmpl extension,
// substituting rig variables before the file is linked or diffed.
package template

import (
	"bytes"
	"os"
	"strings"
	"text/template"

	"github.com/Dacraezy1/autorig/pkg/errors"
)

// Ext is the file extension that marks a dotfile source as a template.
const Ext = ".tmpl"

// IsTemplate reports whether the source path requires rendering.
func IsTemplate(path string) bool {
	return strings.HasSuffix(path, Ext)
}

// TargetName strips the template extension from a source name.
func TargetName(path string) string {
	return strings.TrimSuffix(path, Ext)
}

// Render reads a template source and substitutes the given variables.
// Referencing an undefined variable is an error, not an empty string.
func Render(sourcePath string, vars map[string]string) ([]byte, error) {
	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot read template %s", sourcePath)
	}
	return RenderString(string(raw), vars)
}

// RenderString substitutes variables into template content.
func RenderString(content string, vars map[string]string) ([]byte, error) {
	tmpl, err := template.New("dotfile").Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "invalid template syntax")
	}

	if vars == nil {
		vars = map[string]string{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValid, "template rendering failed")
	}
	return buf.Bytes(), nil
}
