package yolo

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/bddconv/internal/utils"
)

// Descriptor is the dataset file handed to the detector trainer
type Descriptor struct {
	Path         string         `yaml:"path"`
	Train        string         `yaml:"train"`
	Val          string         `yaml:"val"`
	Names        map[int]string `yaml:"names"`
	Autodownload bool           `yaml:"autodownload"`
}

// NewDescriptor points at the train and val image directories by absolute
// path and numbers the class names from 0
func NewDescriptor(trainImages, valImages string, names []string) (Descriptor, error) {
	train, err := filepath.Abs(trainImages)
	if err != nil {
		return Descriptor{}, errors.Wrap(err, "resolve train images")
	}
	val, err := filepath.Abs(valImages)
	if err != nil {
		return Descriptor{}, errors.Wrap(err, "resolve val images")
	}
	d := Descriptor{Path: ".", Train: train, Val: val, Names: make(map[int]string, len(names))}
	for i, n := range names {
		d.Names[i] = n
	}
	return d, nil
}

// OrderedNames returns the class names by index
func (d Descriptor) OrderedNames() []string {
	out := make([]string, len(d.Names))
	for i := range out {
		out[i] = d.Names[i]
	}
	return out
}

// WriteDescriptor writes d as YAML
func WriteDescriptor(path string, d Descriptor) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "marshal descriptor")
	}
	err = utils.WriteAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
	return errors.Wrapf(err, "write descriptor %s", path)
}

// ReadDescriptor loads a descriptor written by WriteDescriptor
func ReadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, errors.Wrap(err, "read descriptor")
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, errors.Wrapf(err, "parse descriptor %s", path)
	}
	return d, nil
}
