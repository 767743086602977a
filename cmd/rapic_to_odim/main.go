// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

// Command rapic_to_odim converts rapic format volume files to ODIM_H5.
//
// In its default mode the program converts a single rapic file into one
// ODIM_H5 polar volume. It does not check that all scans within the file
// belong to the same volume; if scans from multiple volumes, sites or
// products are interleaved then the result is undefined. Archive mode (-a)
// splits a multi-volume archive into one output file per volume.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bom-radar/rapic"
	"github.com/bom-radar/rapic/odim"
)

var (
	quiet   bool
	archive bool
)

var rootCmd = &cobra.Command{
	Use:   "rapic_to_odim [-q] input.rapic output.h5",
	Short: "Rapic to ODIM_H5 converter",
	Long: `Rapic to ODIM_H5 converter

Converts a single rapic volume file into an ODIM_H5 polar volume, or with
the -a flag splits a multi-volume rapic archive into one ODIM_H5 file per
volume named <stn>_YYYYMMDD_HHMM00.pvol.h5.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if archive {
			return splitArchive(args[0], args[1])
		}
		return convertFile(args[0], args[1])
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress conversion warnings")
	rootCmd.Flags().BoolVarP(&archive, "archive", "a", false, "split a multi-volume archive into an output directory")
}

func warn(msg string) {
	if !quiet {
		log.Print("warning: ", msg)
	}
}

// readScans decodes every scan in a rapic file, skipping comment lines and
// any other non-scan messages.
func readScans(path string) ([]*rapic.Scan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	buf := rapic.NewBuffer(len(data)+1, len(data)+1)
	wa, err := buf.WriteAcquire(len(data))
	if err != nil {
		return nil, err
	}
	copy(wa, data)
	if err := buf.WriteAdvance(len(data)); err != nil {
		return nil, err
	}

	var scans []*rapic.Scan
	for {
		mt, size, ok, err := buf.ReadDetect()
		if err != nil || !ok {
			return scans, err
		}
		if mt == rapic.MessageScan {
			scan := &rapic.Scan{}
			if err := scan.Decode(buf); err != nil {
				return scans, err
			}
			scans = append(scans, scan)
		}
		if err := buf.ReadAdvance(size); err != nil {
			return scans, err
		}
	}
}

func convertFile(input, output string) error {
	scans, err := readScans(input)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		return fmt.Errorf("no scans found in %s", input)
	}
	_, err = odim.WriteVolume(output, scans, warn)
	return err
}

func splitArchive(input, outputDir string) error {
	scans, err := readScans(input)
	if err != nil {
		return err
	}

	for _, volume := range odim.SplitVolumes(scans) {
		volTime, err := odim.ScanVolumeTime(volume[0])
		if err != nil {
			return err
		}
		path := filepath.Join(outputDir, odim.VolumeFileName(volume[0].StationID(), volTime))
		if _, err := odim.WriteVolume(path, volume, warn); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, rapic.FormatError(err))
		os.Exit(1)
	}
}
