package app

import (
	"github.com/specialistvlad/buildgridgo/internal/registry"
	"github.com/specialistvlad/buildgridgo/modules/host_package"
	"github.com/specialistvlad/buildgridgo/modules/shell"
	"github.com/specialistvlad/buildgridgo/modules/ui_bundle"
	"github.com/specialistvlad/buildgridgo/modules/worker_package"
)

// coreModules is the definitive list of all stage kinds that are compiled
// into the buildgridgo binary.
var coreModules = []registry.Module{
	&ui_bundle.Module{},
	&host_package.Module{},
	&worker_package.Module{},
	&shell.Module{},
}
