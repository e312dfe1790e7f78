package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"media-forge/internal/ffmpeg"
	"media-forge/internal/mediatype"
)

type probeResult struct {
	Path string         `json:"path"`
	Kind mediatype.Kind `json:"kind"`
	Size int64          `json:"size"`
	*ffmpeg.Info
}

func newProbeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the properties of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := opts.toolkit()
			if err != nil {
				return err
			}
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			kind, err := tk.classifier.Classify(cmd.Context(), path)
			if err != nil {
				return err
			}
			desc, err := tk.prober.Describe(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("failed to probe %s: %w", path, err)
			}

			res := probeResult{Path: path, Kind: kind, Size: info.Size(), Info: desc}
			return opts.print(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Path:       %s\n", res.Path)
				fmt.Fprintf(w, "Kind:       %s\n", res.Kind)
				fmt.Fprintf(w, "Size:       %s\n", humanize.IBytes(uint64(res.Size)))
				if desc.Duration > 0 {
					fmt.Fprintf(w, "Duration:   %.2fs\n", desc.Duration)
				}
				if desc.Width > 0 {
					fmt.Fprintf(w, "Resolution: %dx%d\n", desc.Width, desc.Height)
				}
				if desc.FrameRate > 0 {
					fmt.Fprintf(w, "FPS:        %.2f\n", desc.FrameRate)
				}
				if desc.VideoCodec != "" {
					fmt.Fprintf(w, "Video:      %s\n", desc.VideoCodec)
				}
				if desc.AudioCodec != "" {
					fmt.Fprintf(w, "Audio:      %s\n", desc.AudioCodec)
				}
			})
		},
	}
}

func newClassifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file>",
		Short: "Print the media kind of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := opts.toolkit()
			if err != nil {
				return err
			}
			kind, err := tk.classifier.Classify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res := map[string]string{"path": args[0], "kind": string(kind)}
			return opts.print(cmd, res, func(w io.Writer) {
				fmt.Fprintln(w, kind)
			})
		},
	}
}
