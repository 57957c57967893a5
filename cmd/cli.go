// SPDX-License-Identifier: MIT

// Package cmd parses the command line and implements the specview commands.
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"specview/internal/config"
	"specview/internal/log"
	"specview/pkg/build"
)

// Commands selectable on the command line.
const (
	CommandRun     = "run"
	CommandList    = "list"
	CommandAnalyze = "analyze"
)

// Options is the parsed command line on top of the loaded configuration.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Command    string

	// list
	Interactive bool

	// run
	OutputFile string

	// analyze
	InputFile string
	JSON      bool
	Every     int
}

// flagValues holds flag targets; only flags set on the command line are
// copied over the configuration.
type flagValues struct {
	device          int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	fftSize         int
	overlap         float64
	averaging       float64
	window          string
	mode            string
	frameRate       float64
	record          bool
	httpAddress     string
	udpTarget       string
	tui             bool
	verbose         bool
	logLevel        string
}

// ParseArgs builds the command tree, executes it against args and returns the
// selected command with its options. Help and version output go to out.
func ParseArgs(args []string, out io.Writer) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var flags flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(options.ConfigPath)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, &flags, cfg); err != nil {
				return err
			}
			options.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Run command, also the default.
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Capture audio and publish live spectra",
		RunE:  rootCmd.RunE,
	}
	rootCmd.AddCommand(runCmd)

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&options.Interactive, "interactive", "i", false,
		"Pick a device interactively and print its configuration")
	rootCmd.AddCommand(listCmd)

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze FILE.wav",
		Short: "Analyze a WAV file offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.Every < 0 {
				return errors.New("--every must not be negative")
			}
			options.Command = CommandAnalyze
			options.InputFile = args[0]
			return nil
		},
	}
	analyzeCmd.Flags().BoolVar(&options.JSON, "json", false,
		"Write one JSON spectrum frame per line instead of a summary")
	analyzeCmd.Flags().IntVar(&options.Every, "every", 1,
		"With --json, write every Nth frame")
	rootCmd.AddCommand(analyzeCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&options.ConfigPath, "config", "",
		"Configuration file. Default is ./config.yaml when present")

	// Audio Device Configuration
	pf.IntVarP(&flags.device, "device", "d", config.MinDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&flags.channels, "channels", "c", 0,
		"Number of channels to capture (1=mono, 2=stereo)")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", 0,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", 0,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Analysis Configuration
	pf.IntVarP(&flags.fftSize, "fft-size", "n", 0,
		"Samples per transform, a power of two")
	pf.Float64Var(&flags.overlap, "overlap", 0,
		"Percentage of each frame shared with the next")
	pf.Float64Var(&flags.averaging, "averaging", 0,
		"Averaging time constant in seconds")
	pf.StringVarP(&flags.window, "window", "w", "",
		"Window function (blackman-harris, hann, hamming, nuttall, ...)")

	// Render and Transport Configuration
	pf.StringVar(&flags.mode, "render-mode", "",
		"Render wake-up mode: timer or dedicated")
	pf.Float64VarP(&flags.frameRate, "fps", "f", 0,
		"Frames painted per second")
	pf.StringVar(&flags.httpAddress, "http", "",
		"Address serving /spectrum and /metrics; empty string disables")
	pf.StringVar(&flags.udpTarget, "udp", "",
		"Send spectra over UDP to this host:port")
	pf.BoolVarP(&flags.tui, "tui", "t", false,
		"Show the live terminal monitor")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record audio from the specified input device")
	pf.StringVarP(&options.OutputFile, "output", "o", "",
		"Recording file name. Default is <recording.output_dir>/recording-DD-MM-YYYY-HHMMSS.wav")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")
	pf.StringVar(&flags.logLevel, "log-level", "",
		"Log level: debug, info, warn or error")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// applyFlags copies every flag set on the command line into cfg and
// revalidates it.
func applyFlags(cmd *cobra.Command, f *flagValues, cfg *config.Config) error {
	set := cmd.Flags().Changed

	if set("device") {
		cfg.Audio.InputDevice = f.device
	}
	if set("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if set("fft-size") {
		cfg.Analysis.FFTSize = f.fftSize
	}
	if set("overlap") {
		cfg.Analysis.OverlapPercent = f.overlap
	}
	if set("averaging") {
		cfg.Analysis.AveragingSeconds = f.averaging
	}
	if set("window") {
		cfg.Analysis.Window = f.window
	}
	if set("render-mode") {
		cfg.Render.Mode = f.mode
	}
	if set("fps") {
		cfg.Render.FrameRate = f.frameRate
	}
	if set("http") {
		cfg.Transport.HTTPAddress = f.httpAddress
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = f.udpTarget != ""
		cfg.Transport.UDPTargetAddress = f.udpTarget
	}
	if set("tui") {
		cfg.Render.TUI = f.tui
	}
	if set("record") {
		cfg.Recording.Enabled = f.record
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if set("verbose") && f.verbose {
		cfg.LogLevel = log.LevelDebug.String()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}
