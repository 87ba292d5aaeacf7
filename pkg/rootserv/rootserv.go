// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package rootserv

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
	"time"

	"thermoreg/pkg/logger"
)

const shutdownGrace = 5 * time.Second

// RootServer hosts sub-services under path prefixes, plus an optional main
// handler for everything else.
type RootServer struct {
	log        *logger.Logger
	addr       string
	mux        *http.ServeMux
	subservers map[string]string // path -> description
	mainPage   http.Handler
}

func New(addr string) *RootServer {
	ms := &RootServer{
		addr:       addr,
		mux:        http.NewServeMux(),
		subservers: make(map[string]string),
		log:        logger.New("HTTPServer"),
	}
	ms.mux.HandleFunc("/index", ms.handleIndex)
	ms.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if ms.mainPage != nil {
			ms.mainPage.ServeHTTP(w, r)
			return
		}
		http.Redirect(w, r, "/index", http.StatusTemporaryRedirect)
	})
	return ms
}

// Attach mounts handler under path. The handler sees URLs with the prefix
// stripped. Path "/" registers the main handler.
func (ms *RootServer) Attach(path, desc string, handler http.Handler) {
	ms.log.Info("attach: %s (%s)", path, desc)

	if path == "/" {
		ms.mainPage = handler
		return
	}

	path = "/" + strings.Trim(path, "/")
	ms.subservers[path] = desc
	ms.mux.Handle(path+"/", http.StripPrefix(path, handler))
	// bare prefix, so /metrics works as well as /metrics/
	ms.mux.Handle(path, http.StripPrefix(path, handler))
}

func (ms *RootServer) Handler() http.Handler {
	return ms.mux
}

func (ms *RootServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	fmt.Fprintln(w, "<!DOCTYPE html><html><head><title>thermoreg</title></head><body>")
	fmt.Fprintln(w, "<h1>thermoreg</h1><ul>")

	paths := make([]string, 0, len(ms.subservers))
	for path := range ms.subservers {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fmt.Fprintf(w, `<li><a href="%s">%s</a> - %s</li>`, path, path, html.EscapeString(ms.subservers[path]))
	}
	fmt.Fprintln(w, "</ul></body></html>")
}

func (ms *RootServer) Run(ctx context.Context) {
	ms.log.Info("listening on %s", ms.addr)

	srv := &http.Server{
		Addr:              ms.addr,
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			ms.log.Error("shutdown: %v", err)
		}
		ms.log.Info("Stopped")
	case err := <-errCh:
		if err != nil {
			// panic so service.Start cancels the app instead of running
			// on without an API
			ms.log.Fatal("listen on %s: %v", ms.addr, err)
		}
	}
}
