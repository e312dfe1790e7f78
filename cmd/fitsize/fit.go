package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"media-forge/internal/fitter"
	"media-forge/internal/queue"
	"media-forge/internal/tempfile"
)

type fitResult struct {
	Input      string `json:"input"`
	Output     string `json:"output,omitempty"`
	InputSize  int64  `json:"input_size"`
	OutputSize int64  `json:"output_size"`
	Limit      int64  `json:"limit"`
	Changed    bool   `json:"changed"`
}

func newFitCmd(opts *options) *cobra.Command {
	var (
		out       string
		limit     string
		abort     string
		softLimit string
	)

	cmd := &cobra.Command{
		Use:   "fit <file>",
		Short: "Shrink a file until it fits the upload limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := opts.toolkit()
			if err != nil {
				return err
			}
			cfg := fitter.Config{
				UploadLimit: int64(tk.cfg.UploadSizeLimit),
				AbortLimit:  int64(tk.cfg.AbortSizeLimit),
				SoftLimit:   int64(tk.cfg.SoftSizeLimit),
			}
			if limit != "" {
				if cfg.UploadLimit, err = parseBytes(limit); err != nil {
					return err
				}
				if cfg.AbortLimit < cfg.UploadLimit {
					cfg.AbortLimit = cfg.UploadLimit
				}
				if cfg.SoftLimit > cfg.UploadLimit {
					cfg.SoftLimit = 0
				}
			}
			if abort != "" {
				if cfg.AbortLimit, err = parseBytes(abort); err != nil {
					return err
				}
			}
			if softLimit != "" {
				if cfg.SoftLimit, err = parseBytes(softLimit); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := tk.runner.Available(); err != nil {
				return err
			}
			defer tk.runner.Cleanup()

			ft := fitter.New(cfg, tk.prober, tk.encoder, tk.classifier, queue.New(1))
			res, err := fitFile(cmd.Context(), ft, args[0], out)
			if err != nil {
				return err
			}
			res.Limit = cfg.UploadLimit

			return opts.print(cmd, res, func(w io.Writer) {
				if !res.Changed {
					fmt.Fprintf(w, "%s already fits (%s <= %s)\n", res.Input,
						humanize.IBytes(uint64(res.InputSize)), humanize.IBytes(uint64(res.Limit)))
					return
				}
				fmt.Fprintf(w, "%s: %s -> %s (limit %s), written to %s\n", res.Input,
					humanize.IBytes(uint64(res.InputSize)), humanize.IBytes(uint64(res.OutputSize)),
					humanize.IBytes(uint64(res.Limit)), res.Output)
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Where to write the fitted file (default: <name>.fit.<ext>)")
	cmd.Flags().StringVar(&limit, "limit", "", "Upload limit, e.g. 8MB (overrides the config)")
	cmd.Flags().StringVar(&abort, "abort", "", "Reject files larger than this outright")
	cmd.Flags().StringVar(&softLimit, "soft-limit", "", "Size to aim for below the upload limit")
	return cmd
}

// fitFile fits input and moves a changed result to out. The input itself
// is never modified or deleted.
func fitFile(ctx context.Context, ft *fitter.Fitter, input, out string) (*fitResult, error) {
	src := &tempfile.File{Path: input}
	size, err := src.Size()
	if err != nil {
		return nil, err
	}
	if out == "" {
		ext := filepath.Ext(input)
		out = input[:len(input)-len(ext)] + ".fit" + ext
	}

	// Work next to out so the final rename stays on one filesystem.
	return tempfile.Scope(ctx, filepath.Dir(out), func(ctx context.Context, s *tempfile.Session) (*fitResult, error) {
		fitted, err := ft.Fit(ctx, src)
		if err != nil {
			return nil, err
		}
		res := &fitResult{Input: input, InputSize: size, OutputSize: size}
		if fitted == src {
			return res, nil
		}

		s.Release(fitted)
		if filepath.Ext(fitted.Path) != filepath.Ext(out) {
			out = out[:len(out)-len(filepath.Ext(out))] + filepath.Ext(fitted.Path)
		}
		if err := os.Rename(fitted.Path, out); err != nil {
			return nil, errors.Join(fmt.Errorf("move result to %s: %w", out, err), os.Remove(fitted.Path))
		}
		if res.OutputSize, err = (&tempfile.File{Path: out}).Size(); err != nil {
			return nil, err
		}
		res.Output = out
		res.Changed = true
		return res, nil
	})
}

func parseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}
