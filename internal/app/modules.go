package app

import (
	"github.com/vk/modboot/modules/eventbus"
	"github.com/vk/modboot/modules/fileproc"
	"github.com/vk/modboot/modules/history"
	"github.com/vk/modboot/modules/playlist"
	"github.com/vk/modboot/modules/research"
	"github.com/vk/modboot/modules/scraper"
	"github.com/vk/modboot/modules/theme"
)

// coreModules is the default set of built-in module factories.
var coreModules = []RegisterFunc{
	eventbus.Register,
	theme.Register,
	history.Register,
	fileproc.Register,
	scraper.Register,
	playlist.Register,
	research.Register,
}
