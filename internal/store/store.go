// Package store owns the validated desired-state catalog: images, profiles,
// cloud-init templates, and containers, read from a directory of YAML files.
// The store never resolves cross-references itself; that happens on demand
// during engine enrichment.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chimera-project/chimerad/internal/model"
	hclog "github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Store holds the catalogs loaded from a desired-state directory tree. Reads
// (Get*/List*) are safe for concurrent use with Load: a reader observes
// either the previous or the next coherent snapshot, never a torn one.
type Store struct {
	logger hclog.Logger
	dir    string

	mu                 sync.RWMutex
	images             map[string]model.Image
	profiles           map[string]model.Profile
	cloudInitTemplates map[string]model.CloudInit
	containers         map[string]model.Container
	containerOrder     []string
	lastChangeToken    string
}

// New constructs a Store rooted at dir. Call Load before using it.
func New(logger hclog.Logger, dir string) *Store {
	return &Store{
		logger: logger.Named("store"),
		dir:    dir,
	}
}

// imagesSubdir, profilesSubdir, cloudInitSubdir, and nodesSubdir are the
// desired-state tree's resource-kind directories.
const (
	imagesSubdir    = "images"
	profilesSubdir  = "profiles"
	cloudInitSubdir = "cloud-init"
	nodesSubdir     = "nodes"
)

// Load reads the desired-state tree and replaces the in-memory catalogs
// atomically on success. A parse failure within one resource kind's files is
// logged and that resource is skipped; the rest of that kind's catalog
// still reflects whatever files did parse. A missing subdirectory is not an
// error, just an empty catalog for that kind.
func (s *Store) Load() error {
	images, err := loadImages(s.logger, filepath.Join(s.dir, imagesSubdir))
	if err != nil {
		return err
	}

	profiles, err := loadProfiles(s.logger, filepath.Join(s.dir, profilesSubdir))
	if err != nil {
		return err
	}

	templates, err := loadCloudInitTemplates(s.logger, filepath.Join(s.dir, cloudInitSubdir))
	if err != nil {
		return err
	}

	containers, order, err := loadContainers(s.logger, filepath.Join(s.dir, nodesSubdir))
	if err != nil {
		return err
	}

	token, err := s.digestTree()
	if err != nil {
		s.logger.Warn("failed to compute change token", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = images
	s.profiles = profiles
	s.cloudInitTemplates = templates
	s.containers = containers
	s.containerOrder = order
	s.lastChangeToken = token

	s.logger.Info("loaded desired state",
		"images", len(images), "profiles", len(profiles),
		"cloud_init_templates", len(templates), "containers", len(containers))
	return nil
}

// ChangeToken returns the digest over every YAML file's path and contents
// under the desired-state tree, as computed by the most recent Load. It is
// not recomputed on each call: comparing the token from before and after a
// Load tells whether the files' bytes changed.
func (s *Store) ChangeToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastChangeToken
}

func (s *Store) digestTree() (string, error) {
	var paths []string
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".yaml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		h.Write([]byte(p))
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GetImage looks up an image by name.
func (s *Store) GetImage(name string) (model.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[name]
	return img, ok
}

// GetProfile looks up a profile by name.
func (s *Store) GetProfile(name string) (model.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return p, ok
}

// GetContainer looks up a container by name.
func (s *Store) GetContainer(name string) (model.Container, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.containers[name]
	return c, ok
}

// GetCloudInitTemplate looks up a named cloud-init template.
func (s *Store) GetCloudInitTemplate(name string) (model.CloudInit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.cloudInitTemplates[name]
	return t, ok
}

// ListContainers returns every declared container in the order Load inserted
// them: node files in path order, and within one file by container name
// (the order of keys inside a YAML file is not kept).
func (s *Store) ListContainers() []model.Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Container, 0, len(s.containerOrder))
	for _, name := range s.containerOrder {
		out = append(out, s.containers[name])
	}
	return out
}

// ListImages returns every declared image, in no particular order.
func (s *Store) ListImages() []model.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img)
	}
	return out
}

// ListProfiles returns every declared profile, in no particular order.
func (s *Store) ListProfiles() []model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

func readYAMLFiles(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make(map[string][]byte)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		out[path] = content
	}
	return out, nil
}

func loadImages(logger hclog.Logger, dir string) (map[string]model.Image, error) {
	files, err := readYAMLFiles(dir)
	if err != nil {
		logger.Warn("images directory not readable", "dir", dir, "error", err)
		return map[string]model.Image{}, nil
	}

	images := make(map[string]model.Image)
	for path, content := range files {
		var raw map[string]model.Image
		if err := yaml.Unmarshal(content, &raw); err != nil {
			logger.Error("error loading images file", "path", path, "error", err)
			continue
		}
		for name, img := range raw {
			img.Name = name
			if err := img.Validate(); err != nil {
				logger.Error("invalid image, skipping", "name", name, "error", err)
				continue
			}
			images[name] = img
		}
		logger.Debug("loaded images", "path", path)
	}
	return images, nil
}

func loadProfiles(logger hclog.Logger, dir string) (map[string]model.Profile, error) {
	files, err := readYAMLFiles(dir)
	if err != nil {
		logger.Warn("profiles directory not readable", "dir", dir, "error", err)
		return map[string]model.Profile{}, nil
	}

	profiles := make(map[string]model.Profile)
	for path, content := range files {
		var raw map[string]model.Profile
		if err := yaml.Unmarshal(content, &raw); err != nil {
			logger.Error("error loading profiles file", "path", path, "error", err)
			continue
		}
		for name, p := range raw {
			p.Name = name
			if err := p.Validate(); err != nil {
				logger.Error("invalid profile, skipping", "name", name, "error", err)
				continue
			}
			profiles[name] = p
		}
		logger.Debug("loaded profiles", "path", path)
	}
	return profiles, nil
}

func loadCloudInitTemplates(logger hclog.Logger, dir string) (map[string]model.CloudInit, error) {
	files, err := readYAMLFiles(dir)
	if err != nil {
		logger.Warn("cloud-init directory not readable", "dir", dir, "error", err)
		return map[string]model.CloudInit{}, nil
	}

	templates := make(map[string]model.CloudInit)
	for path, content := range files {
		var raw map[string]model.CloudInit
		if err := yaml.Unmarshal(content, &raw); err != nil {
			logger.Error("error loading cloud-init file", "path", path, "error", err)
			continue
		}
		for name, t := range raw {
			templates[name] = t
		}
		logger.Debug("loaded cloud-init templates", "path", path)
	}
	return templates, nil
}

type nodesFile struct {
	Containers map[string]model.Container `yaml:"containers"`
}

func loadContainers(logger hclog.Logger, dir string) (map[string]model.Container, []string, error) {
	files, err := readYAMLFiles(dir)
	if err != nil {
		logger.Warn("nodes directory not readable", "dir", dir, "error", err)
		return map[string]model.Container{}, nil, nil
	}

	containers := make(map[string]model.Container)
	var order []string

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		var nf nodesFile
		if err := yaml.Unmarshal(files[path], &nf); err != nil {
			logger.Error("error loading nodes file", "path", path, "error", err)
			continue
		}
		names := make([]string, 0, len(nf.Containers))
		for name := range nf.Containers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			c := nf.Containers[name]
			c.Name = name
			if err := c.ValidateShape(); err != nil {
				logger.Error("invalid container, skipping", "name", name, "error", err)
				continue
			}
			if _, exists := containers[name]; !exists {
				order = append(order, name)
			}
			containers[name] = c
		}
		logger.Debug("loaded containers", "path", path)
	}
	return containers, order, nil
}
