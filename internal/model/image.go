// Package model holds the value types for the desired-state catalog: images,
// profiles, containers, and cloud-init bodies, plus the validation and
// deep-merge rules spec'd against them.
package model

import "fmt"

// VerifyMode is the signature/checksum verification applied to a pulled image.
type VerifyMode string

const (
	VerifySignature VerifyMode = "signature"
	VerifyChecksum  VerifyMode = "checksum"
	VerifyNone      VerifyMode = "none"
)

// ImageKind selects the host pull tool used to fetch an image.
type ImageKind string

const (
	ImageKindTar ImageKind = "tar"
	ImageKindRaw ImageKind = "raw"
)

// CustomFileOp is the post-clone modification applied to a single path.
type CustomFileOp string

const (
	CustomFileAbsent CustomFileOp = "absent"
	CustomFileLink   CustomFileOp = "link"
)

// CustomFile is one post-clone modification applied to a tar-kind image's
// container root.
type CustomFile struct {
	Path   string       `yaml:"path"`
	Op     CustomFileOp `yaml:"ensure"`
	Target string       `yaml:"target,omitempty"`
}

// Validate checks that a link op names a target.
func (f CustomFile) Validate() error {
	if f.Path == "" {
		return fmt.Errorf("custom file: path is required")
	}
	switch f.Op {
	case CustomFileAbsent:
		return nil
	case CustomFileLink:
		if f.Target == "" {
			return fmt.Errorf("custom file %q: op=link requires a target", f.Path)
		}
		return nil
	default:
		return fmt.Errorf("custom file %q: unknown op %q", f.Path, f.Op)
	}
}

// Image is the identity and attributes of a pullable container image.
type Image struct {
	Name        string       `yaml:"-"`
	Kind        ImageKind    `yaml:"type"`
	Source      string       `yaml:"source"`
	Verify      VerifyMode   `yaml:"verify"`
	CustomFiles []CustomFile `yaml:"custom_files,omitempty"`
}

// Validate performs the cheap structural checks the image provider runs
// beyond whatever the (external) schema validator already enforces.
func (img Image) Validate() error {
	if img.Name == "" {
		return fmt.Errorf("image: name is required")
	}
	switch img.Kind {
	case ImageKindTar, ImageKindRaw:
	default:
		return fmt.Errorf("image %q: unknown kind %q", img.Name, img.Kind)
	}
	if img.Source == "" {
		return fmt.Errorf("image %q: source is required", img.Name)
	}
	switch img.Verify {
	case VerifySignature, VerifyChecksum, VerifyNone, "":
	default:
		return fmt.Errorf("image %q: unknown verify mode %q", img.Name, img.Verify)
	}
	for _, f := range img.CustomFiles {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("image %q: %w", img.Name, err)
		}
	}
	return nil
}

// VerifyOrDefault returns Verify, defaulting to signature verification.
func (img Image) VerifyOrDefault() VerifyMode {
	if img.Verify == "" {
		return VerifySignature
	}
	return img.Verify
}
