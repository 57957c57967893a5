// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"

	"specview/internal/audio"
	"specview/internal/config"
	"specview/internal/tui"
)

// RunList prints the host devices, or with opts.Interactive lets the user pick
// one and prints the matching audio configuration section.
func RunList(w io.Writer, opts *Options) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if !opts.Interactive {
		return audio.ListDevices(w)
	}

	sel, err := tui.StartDeviceListUI()
	if err != nil {
		return err
	}
	if sel == nil {
		return nil
	}
	return writeSelection(w, sel, opts.Config)
}

// writeSelection prints cfg with the selected device applied, ready to be
// saved as config.yaml.
func writeSelection(w io.Writer, sel *tui.Selection, cfg *config.Config) error {
	cfg.Audio.InputDevice = sel.DeviceID
	cfg.Audio.SampleRate = sel.SampleRate
	cfg.Audio.InputChannels = sel.Channels

	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s\n", sel.Name)
	_, err = w.Write(data)
	return err
}
