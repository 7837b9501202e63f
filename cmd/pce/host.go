/*
   PCE - Host backend selection for cmd/pce.

   Copyright (c) 2026, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

package main

import (
	"fmt"
	"os"

	"github.com/rcornwell/pce/internal/host"
	"github.com/rcornwell/pce/internal/host/termhost"
)

// newSDLHost is overridden by host_sdl.go when built with the "sdl" tag;
// the default build links no cgo dependency and -display sdl just errors.
var newSDLHost = func(title string, width, height int32) (host.Interface, error) {
	return nil, fmt.Errorf("pce: built without sdl support (rebuild with -tags sdl)")
}

// buildHost resolves the -display flag to a concrete host.Interface.
func buildHost(kind string, title string, width, height int32) (host.Interface, error) {
	switch kind {
	case "", "headless":
		return host.NewHeadless(), nil
	case "term":
		return termhost.New(int(os.Stdin.Fd()))
	case "sdl":
		return newSDLHost(title, width, height)
	default:
		return nil, fmt.Errorf("pce: unknown -display %q (want headless, term, sdl)", kind)
	}
}
