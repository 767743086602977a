// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

// Package odim defines the contract between decoded rapic scans and an
// ODIM_H5 polar volume writer, along with the volume grouping and timestamp
// helpers shared by converters.
//
// The HDF5 encoding itself is an external collaborator: implementations of
// Writer are provided by separate packages and installed with Register.
package odim

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/bom-radar/rapic"
)

// Writer consumes a list of scans sharing a single product instance and
// writes them as an ODIM_H5 polar volume file, returning the derived volume
// timestamp.
//
// Writers may assume the preconditions checked by ValidateScanSet: all scans
// are of the VOLUMETRIC product type, belong to one product instance, and
// are sorted by pass order such that all passes associated with a tilt are
// grouped together. The tilts and passes are written out in list order, so
// the first scan maps to the ODIM group dataset1/data1. Warnings raised
// during conversion are reported through warn, which may be nil.
type Writer interface {
	WriteVolume(path string, scans []*rapic.Scan, warn func(string)) (time.Time, error)
}

var writer Writer

// Register installs the volume writer used by WriteVolume. It is typically
// called from an init function of the package providing the HDF5 encoding.
func Register(w Writer) { writer = w }

// WriteVolume writes scans to path using the registered writer.
func WriteVolume(path string, scans []*rapic.Scan, warn func(string)) (time.Time, error) {
	if writer == nil {
		return time.Time{}, errors.New("odim: no volume writer registered")
	}
	return writer.WriteVolume(path, scans, warn)
}

// ParseTimestamp parses a rapic TIMESTAMP header value (YYYYMMDDHHMMSS, UTC).
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse("20060102150405", value)
	if err != nil {
		return time.Time{}, errors.New("odim: invalid rapic timestamp")
	}
	return t.UTC(), nil
}

// VolumeTime derives the overall product time from a VOLUMETRIC PRODUCT
// header, whose bracketed tag encodes hour, minute, day of year and two
// digit year.
func VolumeTime(product string) (time.Time, error) {
	var hour, min, yday, year int
	if _, err := fmt.Sscanf(product, "VOLUMETRIC [%02d%02d%03d%02d]", &hour, &min, &yday, &year); err != nil {
		return time.Time{}, errors.New("odim: invalid PRODUCT header")
	}
	if year < 70 {
		year += 100
	}
	// day of year offsets from january 1st
	t := time.Date(1900+year, time.January, 1, hour, min, 0, 0, time.UTC)
	return t.AddDate(0, 0, yday-1), nil
}

// ScanVolumeTime returns the product time of a decoded scan.
func ScanVolumeTime(s *rapic.Scan) (time.Time, error) {
	return VolumeTime(s.Product())
}

// ValidateScanSet checks the writer preconditions on a scan set, returning
// every violation found.
func ValidateScanSet(scans []*rapic.Scan) error {
	var result *multierror.Error

	if len(scans) == 0 {
		return errors.New("odim: empty scan set")
	}

	first := scans[0]
	if _, err := VolumeTime(first.Product()); err != nil {
		result = multierror.Append(result, err)
	}

	lastPass := 0
	for i, s := range scans {
		if s.Product() != first.Product() {
			result = multierror.Append(result,
				fmt.Errorf("odim: scan %d belongs to product %q, expected %q", i, s.Product(), first.Product()))
		}
		if s.StationID() != first.StationID() {
			result = multierror.Append(result,
				fmt.Errorf("odim: scan %d belongs to station %d, expected %d", i, s.StationID(), first.StationID()))
		}
		switch {
		case s.Pass() == -1:
			result = multierror.Append(result, fmt.Errorf("odim: scan %d carries no PASS header", i))
		case s.Pass() == lastPass+1 || s.Pass() == 1:
			lastPass = s.Pass()
		default:
			result = multierror.Append(result,
				fmt.Errorf("odim: scan %d breaks pass ordering (pass %d after %d)", i, s.Pass(), lastPass))
		}
	}

	return result.ErrorOrNil()
}

// SplitVolumes partitions an archive of decoded scans into volumes. A new
// volume starts whenever the product instance changes; within a volume the
// wire order is preserved.
func SplitVolumes(scans []*rapic.Scan) [][]*rapic.Scan {
	var volumes [][]*rapic.Scan
	for _, s := range scans {
		n := len(volumes)
		if n == 0 || volumes[n-1][0].Product() != s.Product() || volumes[n-1][0].StationID() != s.StationID() {
			volumes = append(volumes, []*rapic.Scan{s})
			continue
		}
		volumes[n-1] = append(volumes[n-1], s)
	}
	return volumes
}

// VolumeFileName builds the conventional output name for a split volume:
// <stn>_YYYYMMDD_HHMM00.pvol.h5.
func VolumeFileName(stationID int, volTime time.Time) string {
	return fmt.Sprintf("%d_%s00.pvol.h5", stationID, volTime.UTC().Format("20060102_1504"))
}
