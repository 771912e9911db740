package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"nerdemo/internal/detect"
	"nerdemo/internal/models"
)

func newModelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage installed NER models",
	}
	registry := func() (models.Registry, string, error) {
		reg, err := models.LoadRegistry(a.cfg.Model.Registry)
		if err != nil {
			return models.Registry{}, "", err
		}
		return reg, a.cfg.Model.Root, nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List models in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, root, err := registry()
			if err != nil {
				return err
			}
			return modelList(cmd.OutOrStdout(), reg, root)
		},
	}
	info := &cobra.Command{
		Use:   "info <name>",
		Short: "Show details of one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, root, err := registry()
			if err != nil {
				return err
			}
			return modelInfo(cmd.OutOrStdout(), reg, root, args[0])
		},
	}
	var all bool
	download := &cobra.Command{
		Use:   "download [name]",
		Short: "Download and install a model (the recommended one when no name is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, root, err := registry()
			if err != nil {
				return err
			}
			selected, err := selectDownloads(reg, args, all)
			if err != nil {
				return err
			}
			dl := models.NewDownloader()
			dl.Logger = a.logger
			return modelDownload(cmd.Context(), cmd.OutOrStdout(), dl, selected, root)
		},
	}
	download.Flags().BoolVar(&all, "all", false, "download every model in the registry")

	var yes bool
	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete an installed model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, root, err := registry()
			if err != nil {
				return err
			}
			return modelRemove(cmd.InOrStdin(), cmd.OutOrStdout(), reg, root, args[0], yes)
		},
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check installed models for missing files, checksum drift and loadability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, root, err := registry()
			if err != nil {
				return err
			}
			return modelVerify(cmd.OutOrStdout(), reg, root, a.cfg.Inference.PythonBin)
		},
	}

	cmd.AddCommand(list, info, download, remove, verify)
	return cmd
}

func modelList(w io.Writer, registry models.Registry, root string) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Lang", "Size", "Status", "F1"})
	table.SetAutoFormatHeaders(false)
	installed := 0
	var totalSize int64
	for _, m := range registry.Models {
		status := "not installed"
		if models.IsInstalled(root, m) {
			status = "installed"
			installed++
			totalSize += m.SizeBytes
		}
		name := m.Name
		if m.Recommended {
			name += " *"
		}
		table.Append([]string{name, m.Language, humanBytes(m.SizeBytes), status, fmt.Sprintf("%.3f", m.Accuracy.F1Score)})
	}
	table.Render()
	fmt.Fprintf(w, "Installed: %d/%d models (%s)\n", installed, len(registry.Models), humanBytes(totalSize))
	fmt.Fprintln(w, "\nTip: Use 'nerdemo model download <name>' to install a model")
	return nil
}

// selectDownloads resolves the models a download invocation installs: every
// registry model with --all, the named one, or the recommended one.
func selectDownloads(reg models.Registry, args []string, all bool) ([]models.ModelSpec, error) {
	switch {
	case all && len(args) > 0:
		return nil, fmt.Errorf("--all takes no model name")
	case all:
		return reg.Models, nil
	case len(args) == 1:
		m, ok := reg.Find(args[0])
		if !ok {
			return nil, unknownModel(reg, args[0])
		}
		return []models.ModelSpec{m}, nil
	}
	m, ok := reg.Recommended()
	if !ok {
		return nil, fmt.Errorf("registry has no recommended model: usage: nerdemo model download <name> or --all")
	}
	return []models.ModelSpec{m}, nil
}

func unknownModel(registry models.Registry, name string) error {
	return fmt.Errorf("model %q not found (available: %s)", name, strings.Join(registry.Names(), ", "))
}

func modelInfo(w io.Writer, registry models.Registry, root, name string) error {
	m, ok := registry.Find(name)
	if !ok {
		return unknownModel(registry, name)
	}
	status := "Not installed"
	if models.IsInstalled(root, m) {
		status = "Installed"
	}
	fmt.Fprintf(w, "NER Model: %s\n", m.Name)
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "Status:         %s\n", status)
	fmt.Fprintf(w, "Display name:   %s\n", m.DisplayName)
	fmt.Fprintf(w, "Version:        %s\n", m.Version)
	fmt.Fprintf(w, "Language:       %s\n", m.Language)
	fmt.Fprintf(w, "Size:           %s\n", humanBytes(m.SizeBytes))
	fmt.Fprintf(w, "Location:       %s\n", models.ModelInstallPath(root, m.Name))
	fmt.Fprintf(w, "Description:    %s\n", m.Description)
	fmt.Fprintf(w, "Entity Types:   %s\n", strings.Join(m.EntityTypes, ", "))
	fmt.Fprintf(w, "Accuracy:       F1 %.3f (%s)\n", m.Accuracy.F1Score, m.Accuracy.Benchmark)
	fmt.Fprintf(w, "Architecture:   %s\n", m.Architecture)
	fmt.Fprintf(w, "Memory:         %d MB minimum\n", m.Requirements.MinMemoryMB)
	fmt.Fprintf(w, "License:        %s\n", m.License)
	fmt.Fprintf(w, "URL:            %s\n", m.URL)
	fmt.Fprintf(w, "Checksum:       %s\n", m.Checksum)
	return nil
}

func modelDownload(ctx context.Context, w io.Writer, dl *models.Downloader, selected []models.ModelSpec, root string) error {
	for _, m := range selected {
		fmt.Fprintf(w, "\nDownloading %s v%s\n", m.Name, m.Version)
		fmt.Fprintf(w, "Source: %s\n\n", m.URL)
		lastUpdate := time.Time{}
		err := dl.DownloadAndInstall(ctx, m, root, func(p models.Progress) {
			if time.Since(lastUpdate) < 120*time.Millisecond && p.Total > 0 {
				return
			}
			lastUpdate = time.Now()
			pct := float64(0)
			if p.Total > 0 {
				pct = float64(p.Downloaded) * 100 / float64(p.Total)
			}
			fmt.Fprintf(w, "\rDownloading... %6.2f%% | %s / %s | %.2f MB/s | ETA %s", pct, humanBytes(p.Downloaded), humanBytes(p.Total), p.SpeedMBps, p.ETA.Truncate(time.Second))
		})
		fmt.Fprintln(w)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "Verifying checksum... ✓")
		fmt.Fprintln(w, "Extracting... ✓")
		if err := validateModelMetadata(filepath.Join(root, m.Name)); err != nil {
			return fmt.Errorf("validate model: %w", err)
		}
		fmt.Fprintln(w, "Validating model... ✓")
		fmt.Fprintf(w, "\n✓ Model %s installed successfully\n", m.Name)
	}
	return nil
}

// validateModelLoads runs the python backend once against modelDir.
func validateModelLoads(modelDir, pythonBin string) error {
	if err := validateModelMetadata(modelDir); err != nil {
		return err
	}
	inf, err := detect.New(detect.Config{Backend: detect.BackendPython, ModelDir: modelDir, PythonBin: pythonBin}, nil)
	if err != nil {
		return err
	}
	_, err = inf.Predict(context.Background(), "John Smith works for Acme in Berlin.")
	if errors.Is(err, detect.ErrNERUnavailable) {
		return fmt.Errorf("model files present but pipeline initialization failed: %w", err)
	}
	return err
}

func validateModelMetadata(modelDir string) error {
	labelsRaw, err := os.ReadFile(filepath.Join(modelDir, "labels.json"))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read labels.json: %w", err)
	default:
		var names map[string]string
		if err := json.Unmarshal(labelsRaw, &names); err != nil {
			return fmt.Errorf("parse labels.json: %w", err)
		}
		if len(names) == 0 {
			return fmt.Errorf("labels.json is empty")
		}
	}

	tokenizerRaw, err := os.ReadFile(filepath.Join(modelDir, "tokenizer.json"))
	if err != nil {
		return fmt.Errorf("read tokenizer.json: %w", err)
	}
	var tokenizerPayload map[string]any
	if err := json.Unmarshal(tokenizerRaw, &tokenizerPayload); err != nil {
		return fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if len(tokenizerPayload) == 0 {
		return fmt.Errorf("tokenizer.json is empty")
	}
	return nil
}

func modelRemove(in io.Reader, w io.Writer, registry models.Registry, root, name string, yes bool) error {
	m, ok := registry.Find(name)
	if !ok {
		return unknownModel(registry, name)
	}
	loc := models.ModelInstallPath(root, m.Name)
	if _, err := os.Stat(loc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(w, "Model %s is not installed\n", name)
			return nil
		}
		return err
	}
	if !yes {
		fmt.Fprintf(w, "Remove model '%s' (%s)?\n", m.Name, humanBytes(m.SizeBytes))
		fmt.Fprintf(w, "This will delete %s\n\n", loc)
		fmt.Fprint(w, "Continue? (y/N): ")
		resp, _ := bufio.NewReader(in).ReadString('\n')
		resp = strings.TrimSpace(strings.ToLower(resp))
		if resp != "y" && resp != "yes" {
			fmt.Fprintln(w, "Cancelled")
			return nil
		}
	}
	if err := os.RemoveAll(loc); err != nil {
		return err
	}
	fmt.Fprintf(w, "Model %s removed successfully\n", m.Name)
	return nil
}

func modelVerify(w io.Writer, registry models.Registry, root, pythonBin string) error {
	fmt.Fprintln(w, "Verifying installed models...")
	installed := 0
	failures := 0
	for _, m := range registry.Models {
		if !models.IsInstalled(root, m) {
			continue
		}
		installed++
		fmt.Fprintf(w, "\n%s\n", m.Name)
		dir := models.ModelInstallPath(root, m.Name)
		if err := models.VerifyInstalled(root, m); err != nil {
			fmt.Fprintf(w, "  ├─ Checksum... ✗ (%v)\n", err)
			failures++
		} else {
			fmt.Fprintln(w, "  ├─ Checksum... ✓")
		}
		if err := models.ValidateModelDir(dir); err != nil {
			fmt.Fprintf(w, "  ├─ Files...    ✗ (%v)\n", err)
			failures++
			continue
		}
		fmt.Fprintln(w, "  ├─ Files...    ✓")
		if err := validateModelLoads(dir, pythonBin); err != nil {
			fmt.Fprintf(w, "  └─ Loadable... ✗ (%v)\n", err)
			failures++
			continue
		}
		fmt.Fprintln(w, "  └─ Loadable... ✓")
	}
	if installed == 0 {
		fmt.Fprintln(w, "\nNo installed models found")
		return nil
	}
	if failures > 0 {
		return fmt.Errorf("%d model(s) failed verification", failures)
	}
	fmt.Fprintln(w, "\nAll models verified")
	return nil
}

func humanBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d KB", n/1024)
}
