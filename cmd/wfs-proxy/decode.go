package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/delta10/wfs-proxy/internal/filter"
	"github.com/delta10/wfs-proxy/internal/inspect"
	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/schema"
	"github.com/delta10/wfs-proxy/internal/wfs"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

type decodeOptions struct {
	schema      string
	query       string
	constraint  string
	maxFeatures int
}

func newDecodeCommand() *cobra.Command {
	var opts decodeOptions
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a Transaction document and print its summary",
		Long: "Decode a Transaction document, read from file or standard input, and print a JSON summary. " +
			"Invalid documents print an exception report instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return decode(cmd, in, opts)
		},
	}
	cmd.Flags().StringVar(&opts.schema, "schema", "", "application schema (YAML) restricting feature types")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "jq expression applied to the summary")
	cmd.Flags().StringVar(&opts.constraint, "constraint", "", "file holding a filter every inserted feature must satisfy")
	cmd.Flags().IntVar(&opts.maxFeatures, "max-features", 0, "maximum number of features, 0 for no limit")
	return cmd
}

func decode(cmd *cobra.Command, in io.Reader, opts decodeOptions) error {
	var inspectOpts inspect.Options
	if opts.schema != "" {
		s, err := schema.Load(opts.schema)
		if err != nil {
			return err
		}
		inspectOpts.Schema = s
	}
	if opts.constraint != "" {
		raw, err := os.ReadFile(opts.constraint)
		if err != nil {
			return err
		}
		c, err := xmlstream.Open(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		if inspectOpts.Constraint, err = filter.NewDecoder().DecodeFilter(c); err != nil {
			return err
		}
	}
	inspectOpts.MaxFeatures = opts.maxFeatures

	version := string(wfs.Version200)
	summary, err := func() (*inspect.Summary, error) {
		c, err := xmlstream.Open(in)
		if err != nil {
			return nil, err
		}
		if c.Name().Space == wfs.Namespace100 {
			version = string(wfs.Version100)
		}
		req, err := wfs.NewDecoder(nil).Decode(c)
		if err != nil {
			return nil, err
		}
		return inspect.Summarize(cmd.Context(), req, inspectOpts)
	}()
	if err != nil {
		if ows.KindOf(err) != 0 {
			if werr := ows.WriteReport(cmd.OutOrStdout(), version, err); werr != nil {
				return werr
			}
		}
		return err
	}

	var out any = summary
	if opts.query != "" {
		if out, err = summary.Rewrite(opts.query); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
