// Package guard switches the process into test mode when imported, so
// command mains linked into tests skip their runtime startup.
package guard

import "github.com/gymflow/gymflow/internal/app"

func init() {
	app.EnableTestMode()
}
