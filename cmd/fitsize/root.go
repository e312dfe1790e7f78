package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"media-forge/internal/ffmpeg"
	"media-forge/internal/mediatype"
	"media-forge/internal/startup"
)

type options struct {
	configPath string
	json       bool
}

// toolkit is what every subcommand needs.
type toolkit struct {
	cfg        *startup.Config
	runner     *ffmpeg.Runner
	prober     *ffmpeg.Prober
	classifier *mediatype.Classifier
	encoder    *ffmpeg.Encoder
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "fitsize",
		Short:         "Fit, probe and classify media files",
		Long:          "Run media-forge's size fitting and probing on local files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to a media-forge YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false,
		"Print JSON even on a terminal")

	cmd.AddCommand(newFitCmd(opts))
	cmd.AddCommand(newProbeCmd(opts))
	cmd.AddCommand(newClassifyCmd(opts))
	return cmd
}

func (o *options) toolkit() (*toolkit, error) {
	path := o.configPath
	if path == "" {
		path = startup.ConfigPath()
	}
	cfg, err := startup.Load(path)
	if err != nil {
		return nil, err
	}
	runner := ffmpeg.NewRunner(cfg.FFmpegPath, cfg.FFprobePath)
	prober := ffmpeg.NewProber(runner)
	classifier := mediatype.NewClassifier(prober)
	return &toolkit{
		cfg:        cfg,
		runner:     runner,
		prober:     prober,
		classifier: classifier,
		encoder:    ffmpeg.NewEncoder(runner, prober, classifier),
	}, nil
}

// wantJSON reports whether output to w should be JSON.
func (o *options) wantJSON(w io.Writer) bool {
	if o.json {
		return true
	}
	f, ok := w.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

// print writes v as indented JSON, or calls human for terminal output.
func (o *options) print(cmd *cobra.Command, v interface{}, human func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if !o.wantJSON(w) {
		human(w)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
