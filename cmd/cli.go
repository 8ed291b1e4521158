// SPDX-License-Identifier: MIT
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"clapsync/internal/config"
	"clapsync/pkg/build"
)

// ParseArgs builds the CLI, executes it against os.Args and returns the
// resulting configuration. Flags override values loaded from the YAML
// config file.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var configPath string
	var outputMode string

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	var command string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	// Base configuration comes from the YAML file (or defaults); flags the
	// user actually passed are layered on top in the PersistentPreRunE below.
	var options *config.Config

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML configuration file")

	// Audio Device Configuration
	flagDevice := rootCmd.PersistentFlags().IntP("device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flagChannels := rootCmd.PersistentFlags().IntP("channels", "c", config.DefaultChannels,
		"Number of channels to record (1=mono, 2=stereo)")
	flagSampleRate := rootCmd.PersistentFlags().Float64P("sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flagFrames := rootCmd.PersistentFlags().IntP("frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flagLowLatency := rootCmd.PersistentFlags().BoolP("low-latency", "l", true,
		"Use low latency mode for real-time processing")

	// Output Configuration
	rootCmd.PersistentFlags().StringVarP(&outputMode, "mode", "m", "",
		"Output mode: midi, relay, both or disabled")
	flagPeer := rootCmd.PersistentFlags().StringP("peer", "p", config.DefaultPeerAddress,
		"Peer address for MIDI clock packets (host:port)")
	flagAutoSync := rootCmd.PersistentFlags().Bool("auto-sync", true,
		"Start the clock automatically when the tempo stabilizes")

	// Recording Configuration
	flagRecord := rootCmd.PersistentFlags().BoolP("record", "r", false,
		"Record the analyzed input stream to a WAV file")

	// Debug Configuration
	flagDebug := rootCmd.PersistentFlags().BoolP("debug", "v", false,
		"Show verbose output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("device") {
			cfg.Audio.InputDevice = *flagDevice
		}
		if cmd.Flags().Changed("channels") {
			cfg.Audio.Channels = *flagChannels
		}
		if cmd.Flags().Changed("sample-rate") {
			cfg.Audio.SampleRate = *flagSampleRate
		}
		if cmd.Flags().Changed("frames-per-buffer") {
			cfg.Audio.FramesPerBuffer = *flagFrames
		}
		if cmd.Flags().Changed("low-latency") {
			cfg.Audio.LowLatency = *flagLowLatency
		}
		if outputMode != "" {
			cfg.Output.Mode = config.OutputMode(outputMode)
		}
		if cmd.Flags().Changed("peer") {
			cfg.Output.PeerAddress = *flagPeer
		}
		if cmd.Flags().Changed("auto-sync") {
			cfg.Output.AutoSync = *flagAutoSync
		}
		if cmd.Flags().Changed("record") {
			cfg.Recording.Enabled = *flagRecord
		}
		if cmd.Flags().Changed("debug") {
			cfg.Debug = *flagDebug
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		options = cfg
		return nil
	}
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return nil
	}

	// Execute the CLI
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	if options == nil {
		// Help or version output short-circuits PersistentPreRunE.
		options = config.NewConfig()
	}
	options.Command = command

	return options, nil
}
