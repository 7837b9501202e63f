//go:build sdl

package main

import (
	"github.com/rcornwell/pce/internal/host"
	"github.com/rcornwell/pce/internal/host/sdlhost"
)

func init() {
	newSDLHost = func(title string, width, height int32) (host.Interface, error) {
		return sdlhost.New(title, width, height)
	}
}
