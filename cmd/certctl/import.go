package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/certimport/internal/credential"
	"github.com/JonMunkholm/certimport/internal/ingest"
	"github.com/JonMunkholm/certimport/internal/store"
)

type importOptions struct {
	mediaType string
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Validate and import an .xlsx or .csv file",
		Long: `Runs a spreadsheet through the same pipeline as the upload endpoint and
prints the JSON response. The file itself is left untouched; a temp copy is
processed. Exits 2 when the batch is rejected and 1 on server errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			catalog, err := credential.LoadCatalog(cfg.Catalog.File)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := store.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			p := ingest.NewPipeline(st, catalog, nil)
			return runImport(ctx, p, cfg.Upload.TempDir, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.mediaType, "media-type", "", "Media type of the file (default: detect from extension)")
	return cmd
}

// runImport stages a copy of path, runs it through p and writes the wire
// response to out.
func runImport(ctx context.Context, p *ingest.Pipeline, tempDir, path string, opts importOptions, out io.Writer) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	name := filepath.Base(path)
	staged, size, err := ingest.Stage(tempDir, name, src)
	if err != nil {
		return err
	}

	outcome := p.Run(ctx, ingest.Upload{
		Path:      staged,
		FileName:  name,
		MediaType: opts.mediaType,
		Size:      size,
	})
	status, resp := ingest.Report(outcome)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}

	switch {
	case status >= http.StatusInternalServerError:
		return withCode(exitFailure, fmt.Errorf("import failed: %s", resp.Message))
	case !resp.Success:
		return withCode(exitRejected, fmt.Errorf("batch rejected: %s", resp.Message))
	}
	return nil
}
