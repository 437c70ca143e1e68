// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package registry provides the default in-memory ResourceRegistry and
// a link-format WellKnownRenderer. The engine only depends on their
// interfaces; hosts may substitute their own implementations.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coapkit/coapd/pkg/coap"
)

// Registry is a mutex-guarded map from ResourceKey to *coap.Resource.
// Mutation is expected only between event-loop iterations; the lock
// exists so a host's admin surface can register resources from a
// separate goroutine safely.
type Registry struct {
	mu    sync.RWMutex
	byKey map[coap.ResourceKey]*coap.Resource
	paths map[coap.ResourceKey]string // for link-format rendering
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byKey: make(map[coap.ResourceKey]*coap.Resource),
		paths: make(map[coap.ResourceKey]string),
	}
}

// Register adds or replaces the resource at uriPath.
func (r *Registry) Register(uriPath string, resource *coap.Resource) {
	key := hashPath(uriPath)
	resource.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key] = resource
	r.paths[key] = uriPath
}

// Lookup implements coap.ResourceRegistry.
func (r *Registry) Lookup(key coap.ResourceKey) (*coap.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byKey[key]
	return res, ok
}

func hashPath(uriPath string) coap.ResourceKey {
	segments := strings.Split(strings.Trim(uriPath, "/"), "/")
	byteSegments := make([][]byte, len(segments))
	for i, s := range segments {
		byteSegments[i] = []byte(s)
	}
	return coap.HashURIPath(byteSegments)
}

// LinkFormatRenderer renders a Registry's contents as
// application/link-format, the payload served for GET /.well-known/core.
type LinkFormatRenderer struct {
	registry *Registry
}

// NewLinkFormatRenderer builds a renderer over registry.
func NewLinkFormatRenderer(registry *Registry) *LinkFormatRenderer {
	return &LinkFormatRenderer{registry: registry}
}

// Render implements coap.WellKnownRenderer: it writes a comma-separated
// link-format listing of every registered path into buf, in path order,
// truncating (never partially writing a link) if space runs out.
func (r *LinkFormatRenderer) Render(ctx *coap.EndpointContext, buf []byte) (int, error) {
	r.registry.mu.RLock()
	paths := make([]string, 0, len(r.registry.paths))
	for _, p := range r.registry.paths {
		paths = append(paths, p)
	}
	r.registry.mu.RUnlock()
	sort.Strings(paths)

	var b strings.Builder
	for i, p := range paths {
		link := fmt.Sprintf("<%s>", normalizeLeadingSlash(p))
		candidate := link
		if i > 0 {
			candidate = "," + link
		}
		if b.Len()+len(candidate) > len(buf) {
			break
		}
		b.WriteString(candidate)
	}
	n := copy(buf, b.String())
	return n, nil
}

func normalizeLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
