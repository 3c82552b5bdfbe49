package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"leafscan/internal/service/ai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newRootCommand() *cobra.Command {
	var (
		modelID  string
		catalog  string
		modelDir string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "exportmodel <network.json|network.yaml>",
		Short: "Convert a network description into a model artifact",
		Long: `exportmodel reads a sequential network description with Keras-layout
weights, checks that the server can run it and writes a .leafnet artifact.

With --model the class count is checked against the catalog labels and the
artifact is written under --model-dir with the catalogued file name, which a
running server picks up on its next request.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			net, err := readNetwork(args[0])
			if err != nil {
				return err
			}

			var labels []string
			id := net.Name
			if modelID != "" {
				entry, err := lookup(catalog, modelID)
				if err != nil {
					return err
				}
				id, labels = entry.ID, entry.Labels
				if out == "" {
					out = filepath.Join(modelDir, entry.Artifact)
				}
			}
			if out == "" {
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".leafnet"
			}

			m, err := ai.NewModel(id, labels, net)
			if err != nil {
				return errors.Wrapf(err, "invalid network %s", args[0])
			}
			if labels != nil && m.NumClasses() != len(labels) {
				return errors.Errorf("network has %d outputs but %s has %d labels", m.NumClasses(), modelID, len(labels))
			}

			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return errors.Wrap(err, "failed to create output directory")
			}
			if err := ai.SaveArtifact(out, net); err != nil {
				return errors.Wrapf(err, "failed to save %s", out)
			}

			w := cmd.OutOrStdout()
			h, wd := m.InputSize()
			fmt.Fprintf(w, "Wrote %s (%dx%d input, %d classes)\n", out, h, wd, m.NumClasses())
			for _, l := range m.Layers() {
				fmt.Fprintf(w, "  %-20s %-24s %v\n", l.Name, l.Kind, l.OutputShape)
			}
			if sl := m.SaliencyLayer(); sl != "" {
				fmt.Fprintf(w, "Heatmaps from %s\n", sl)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelID, "model", "", "Catalog id the artifact is for")
	cmd.Flags().StringVar(&catalog, "catalog", "", "Model catalog YAML (embedded catalog when empty)")
	cmd.Flags().StringVar(&modelDir, "model-dir", "models", "Directory for catalogued artifacts")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Artifact path")
	return cmd
}

// readNetwork decodes a description as YAML for .yaml/.yml files and JSON
// otherwise. Unknown keys are errors so a misspelt weight never goes missing.
func readNetwork(path string) (*ai.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open network description")
	}
	defer f.Close()

	var net ai.Network
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		err = dec.Decode(&net)
	default:
		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields()
		err = dec.Decode(&net)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return &net, nil
}

func lookup(catalogPath, id string) (ai.ModelEntry, error) {
	c, err := ai.LoadCatalog(catalogPath)
	if err != nil {
		return ai.ModelEntry{}, err
	}

	entry, ok := c.Lookup(id)
	if !ok {
		return ai.ModelEntry{}, fmt.Errorf("%w: %q", ai.ErrUnknownModel, id)
	}
	return entry, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
