// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package bundler

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/debler/debler/pkg/builder"
	"github.com/debler/debler/pkg/constraint"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// GemMetadata is the subset of a gemspec the builder needs.
type GemMetadata struct {
	Name         string
	Version      string
	Platform     string
	Authors      []string
	Email        []string
	Date         string
	Summary      string
	Description  string
	Homepage     string
	Licenses     []string
	RequirePaths []string
	Bindir       string
	Extensions   []string
	Dependencies []GemDependency
}

// GemDependency is one declared gem dependency.
type GemDependency struct {
	Name    string
	Runtime bool
	// Requirements are the declared version requirements, e.g. {"~>", "1.2"}.
	Requirements []constraint.Requirement
}

// ReadGemMetadata extracts and parses the metadata document of a .gem
// archive.
func ReadGemMetadata(path string) (*GemMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	raw, err := readOuterMember(f, "metadata.gz")
	if err != nil {
		return nil, errors.Wrapf(err, "reading metadata of %s", path)
	}
	return parseGemMetadata(raw)
}

// readOuterMember returns the gunzipped content of one member of the outer
// gem tar.
func readOuterMember(f io.Reader, name string) ([]byte, error) {
	t := tar.NewReader(f)
	for {
		hdr, err := t.Next()
		if err == io.EOF {
			return nil, errors.Errorf("no %s member", name)
		} else if err != nil {
			return nil, err
		}
		if hdr.Name != name {
			continue
		}
		gz, err := gzip.NewReader(t)
		if err != nil {
			return nil, errors.Wrapf(err, "decompressing %s", name)
		}
		raw, err := io.ReadAll(gz)
		if err != nil {
			return nil, errors.Wrapf(err, "decompressing %s", name)
		}
		return raw, nil
	}
}

// WalkGemData iterates the members of the inner data archive.
func WalkGemData(path string, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	outer := tar.NewReader(f)
	for {
		hdr, err := outer.Next()
		if err == io.EOF {
			return errors.New("no data.tar.gz member")
		} else if err != nil {
			return err
		}
		if hdr.Name != "data.tar.gz" {
			continue
		}
		gz, err := gzip.NewReader(outer)
		if err != nil {
			return errors.Wrap(err, "decompressing data archive")
		}
		inner := tar.NewReader(gz)
		for {
			ihdr, err := inner.Next()
			if err == io.EOF {
				return nil
			} else if err != nil {
				return errors.Wrap(err, "reading data archive")
			}
			if err := fn(ihdr, inner); err != nil {
				return err
			}
		}
	}
}

// RepackGem converts a two-layer gem archive into a flat upstream tarball:
// the metadata document as metadata.yml and the data members under src/.
func RepackGem(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer f.Close()
	meta, err := readOuterMember(f, "metadata.gz")
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	out, err := builder.CreateTarXZ(dest)
	if err != nil {
		return err
	}
	if err := out.AddBytes("metadata.yml", 0o644, info.ModTime(), meta); err != nil {
		out.Close()
		return err
	}
	err = WalkGemData(src, func(hdr *tar.Header, r io.Reader) error {
		clone := *hdr
		clone.Name = "src/" + hdr.Name
		if err := out.WriteHeader(&clone); err != nil {
			return errors.Wrapf(err, "writing header of %s", clone.Name)
		}
		_, err := io.Copy(out.Writer, r)
		return errors.Wrapf(err, "writing %s", clone.Name)
	})
	if err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

// parseGemMetadata walks the YAML node tree instead of decoding into a
// struct; gemspecs carry ruby-specific type tags the decoder would reject.
func parseGemMetadata(raw []byte) (*GemMetadata, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing gem metadata")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, errors.New("gem metadata is not a document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("gem metadata is not a mapping")
	}
	m := &GemMetadata{
		Name:         scalarOf(mapEntry(root, "name")),
		Version:      scalarOf(mapEntry(mapEntry(root, "version"), "version")),
		Platform:     scalarOf(mapEntry(root, "platform")),
		Authors:      stringsOf(mapEntry(root, "authors")),
		Email:        stringsOf(mapEntry(root, "email")),
		Summary:      scalarOf(mapEntry(root, "summary")),
		Description:  scalarOf(mapEntry(root, "description")),
		Homepage:     scalarOf(mapEntry(root, "homepage")),
		Licenses:     stringsOf(mapEntry(root, "licenses")),
		RequirePaths: stringsOf(mapEntry(root, "require_paths")),
		Bindir:       scalarOf(mapEntry(root, "bindir")),
		Extensions:   stringsOf(mapEntry(root, "extensions")),
	}
	if date := scalarOf(mapEntry(root, "date")); len(date) >= 10 {
		m.Date = date[:10]
	}
	deps := mapEntry(root, "dependencies")
	if deps != nil && deps.Kind == yaml.SequenceNode {
		for _, dn := range deps.Content {
			dep, err := parseGemDependency(dn)
			if err != nil {
				return nil, err
			}
			m.Dependencies = append(m.Dependencies, dep)
		}
	}
	if m.Name == "" || m.Version == "" {
		return nil, errors.New("gem metadata lacks name or version")
	}
	return m, nil
}

func parseGemDependency(n *yaml.Node) (GemDependency, error) {
	dep := GemDependency{
		Name:    scalarOf(mapEntry(n, "name")),
		Runtime: scalarOf(mapEntry(n, "type")) == ":runtime",
	}
	if dep.Name == "" {
		return dep, errors.New("gem dependency without name")
	}
	reqs := mapEntry(mapEntry(n, "version_requirements"), "requirements")
	if reqs == nil {
		reqs = mapEntry(mapEntry(n, "requirement"), "requirements")
	}
	if reqs == nil || reqs.Kind != yaml.SequenceNode {
		return dep, nil
	}
	for _, pair := range reqs.Content {
		if pair.Kind != yaml.SequenceNode || len(pair.Content) != 2 {
			return dep, errors.Errorf("malformed requirement of %s", dep.Name)
		}
		dep.Requirements = append(dep.Requirements, constraint.Requirement{
			Op:      scalarOf(pair.Content[0]),
			Version: scalarOf(mapEntry(pair.Content[1], "version")),
		})
	}
	return dep, nil
}

// mapEntry returns the value node of a mapping key, nil when absent.
func mapEntry(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func scalarOf(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	if strings.HasPrefix(n.Tag, "!!null") {
		return ""
	}
	return n.Value
}

// stringsOf accepts both a scalar and a sequence of scalars.
func stringsOf(n *yaml.Node) []string {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.ScalarNode {
		if s := scalarOf(n); s != "" {
			return []string{s}
		}
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil
	}
	var out []string
	for _, c := range n.Content {
		out = append(out, scalarOf(c))
	}
	return out
}
