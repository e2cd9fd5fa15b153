package app

import (
	"github.com/vk/conveyor/internal/registry"
	"github.com/vk/conveyor/modules/artifact_store"
	"github.com/vk/conveyor/modules/create_release"
	"github.com/vk/conveyor/modules/git_tag"
	"github.com/vk/conveyor/modules/registry_push"
	"github.com/vk/conveyor/modules/version_gate"
)

// coreModules is the definitive list of all action modules that are
// compiled into the conveyor binary.
var coreModules = []registry.Module{
	&version_gate.Module{},
	&git_tag.Module{},
	&registry_push.Module{},
	&create_release.Module{},
	&artifact_store.Module{},
}
