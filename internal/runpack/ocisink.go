/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package runpack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// Media types for the blobs an OCISink pushes, mirroring the skill
// registry's artifact media-type convention.
const (
	MediaTypeRunpackLayer          = "application/vnd.decisiongate.runpack.file.v1"
	MediaTypeRunpackManifestConfig = "application/vnd.decisiongate.runpack.config.v1"
	runpackArtifactType            = "application/vnd.decisiongate.runpack.v1"
)

// OCISink pushes a runpack as a single content-addressed OCI artifact:
// every file Put before the manifest is buffered as a pending layer in
// an in-memory content store, and the manifest Put (always last, per
// Build's write ordering) triggers packing one OCI manifest over every
// buffered layer and copying it to the remote repository in one shot
// — an OCI artifact has no partial state the way loose files on a
// filesystem sink do.
type OCISink struct {
	Registry  string
	Path      string
	PlainHTTP bool
	Username  string
	Password  string

	mu     sync.Mutex
	stores map[string]*memory.Store   // keyPrefix -> buffered layers
	keysBy map[string]map[string]bool // keyPrefix -> set of full keys seen
}

// NewOCISink returns a sink targeting registry/path.
func NewOCISink(registry, path string) *OCISink {
	return &OCISink{
		Registry: registry,
		Path:     path,
		stores:   make(map[string]*memory.Store),
		keysBy:   make(map[string]map[string]bool),
	}
}

// WithAuth sets registry credentials.
func (s *OCISink) WithAuth(username, password string) *OCISink {
	s.Username, s.Password = username, password
	return s
}

func splitPrefix(key string) (prefix, rel string) {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return "", key
	}
	return key[:idx+1], key[idx+1:]
}

func (s *OCISink) Put(ctx context.Context, key string, content []byte) error {
	prefix, rel := splitPrefix(key)

	s.mu.Lock()
	store, ok := s.stores[prefix]
	if !ok {
		store = memory.New()
		s.stores[prefix] = store
		s.keysBy[prefix] = make(map[string]bool)
	}
	s.keysBy[prefix][key] = true
	s.mu.Unlock()

	desc, err := oras.PushBytes(ctx, store, MediaTypeRunpackLayer, content)
	if err != nil {
		return fmt.Errorf("runpack: buffer layer %q: %w", key, err)
	}
	desc.Annotations = map[string]string{ocispec.AnnotationTitle: rel}
	if err := store.Tag(ctx, desc, rel); err != nil {
		return fmt.Errorf("runpack: tag layer %q: %w", key, err)
	}

	if rel != FileManifest {
		return nil
	}
	return s.flush(ctx, prefix, store, content)
}

// flush packs every buffered layer under prefix into one OCI manifest
// and copies it to the remote repository, tagged with a sanitized
// form of prefix so the tag is always derivable from the runpack
// coordinates, never caller-supplied.
func (s *OCISink) flush(ctx context.Context, prefix string, store *memory.Store, manifestContent []byte) error {
	configDesc, err := oras.PushBytes(ctx, store, MediaTypeRunpackManifestConfig, manifestContent)
	if err != nil {
		return fmt.Errorf("runpack: push manifest config: %w", err)
	}

	s.mu.Lock()
	keys := make([]string, 0, len(s.keysBy[prefix]))
	for k := range s.keysBy[prefix] {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	var layerDescs []ocispec.Descriptor
	for _, key := range keys {
		_, rel := splitPrefix(key)
		if rel == FileManifest {
			continue
		}
		desc, err := store.Resolve(ctx, rel)
		if err != nil {
			return fmt.Errorf("runpack: resolve buffered layer %q: %w", rel, err)
		}
		layerDescs = append(layerDescs, desc)
	}

	tag := sanitizeOCITag(prefix)
	manifestDesc, err := oras.PackManifest(ctx, store, oras.PackManifestVersion1_1, runpackArtifactType, oras.PackManifestOptions{
		ConfigDescriptor: &configDesc,
		Layers:           layerDescs,
	})
	if err != nil {
		return fmt.Errorf("runpack: pack manifest: %w", err)
	}
	if err := store.Tag(ctx, manifestDesc, tag); err != nil {
		return fmt.Errorf("runpack: tag manifest: %w", err)
	}

	repo, err := s.repository()
	if err != nil {
		return err
	}
	if _, err := oras.Copy(ctx, store, tag, repo, tag, oras.DefaultCopyOptions); err != nil {
		return fmt.Errorf("runpack: push to registry: %w", err)
	}

	s.mu.Lock()
	delete(s.stores, prefix)
	delete(s.keysBy, prefix)
	s.mu.Unlock()
	return nil
}

func sanitizeOCITag(prefix string) string {
	r := strings.NewReplacer("/", "-", "_", "-")
	tag := r.Replace(strings.Trim(prefix, "/"))
	if tag == "" {
		return "latest"
	}
	return tag
}

func (s *OCISink) repository() (*remote.Repository, error) {
	repoRef := fmt.Sprintf("%s/%s", s.Registry, s.Path)
	repo, err := remote.NewRepository(repoRef)
	if err != nil {
		return nil, fmt.Errorf("runpack: connect registry %q: %w", repoRef, err)
	}
	repo.PlainHTTP = s.PlainHTTP
	if s.Username != "" {
		repo.Client = &auth.Client{
			Client: retry.DefaultClient,
			Credential: auth.StaticCredential(s.Registry, auth.Credential{
				Username: s.Username,
				Password: s.Password,
			}),
		}
	}
	return repo, nil
}

// Get pulls the runpack artifact tagged for key's prefix and returns
// the single file named by key's relative path.
func (s *OCISink) Get(ctx context.Context, key string) ([]byte, error) {
	prefix, rel := splitPrefix(key)
	tag := sanitizeOCITag(prefix)

	repo, err := s.repository()
	if err != nil {
		return nil, err
	}
	store := memory.New()
	manifestDesc, err := oras.Copy(ctx, repo, tag, store, tag, oras.DefaultCopyOptions)
	if err != nil {
		return nil, fmt.Errorf("runpack: pull %q: %w", tag, err)
	}

	manifestRC, err := store.Fetch(ctx, manifestDesc)
	if err != nil {
		return nil, fmt.Errorf("runpack: fetch manifest: %w", err)
	}
	defer manifestRC.Close()
	manifestBody, err := io.ReadAll(manifestRC)
	if err != nil {
		return nil, fmt.Errorf("runpack: read manifest: %w", err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestBody, &manifest); err != nil {
		return nil, fmt.Errorf("runpack: parse manifest: %w", err)
	}

	if rel == FileManifest {
		configRC, err := store.Fetch(ctx, manifest.Config)
		if err != nil {
			return nil, fmt.Errorf("runpack: fetch config: %w", err)
		}
		defer configRC.Close()
		return io.ReadAll(configRC)
	}

	for _, layer := range manifest.Layers {
		if layer.Annotations[ocispec.AnnotationTitle] == rel {
			rc, err := store.Fetch(ctx, layer)
			if err != nil {
				return nil, fmt.Errorf("runpack: fetch layer %q: %w", rel, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("runpack: no layer named %q in artifact %q", rel, tag)
}

// List is not supported against a remote OCI repository without an
// index of tags; callers verifying an OCI-sunk runpack must supply the
// manifest's file list directly (e.g. from Build's BuildResult).
func (s *OCISink) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, fmt.Errorf("runpack: OCISink does not support List; use the manifest's file list instead")
}
