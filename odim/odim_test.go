// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package odim

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bom-radar/rapic"
)

// volumeScan decodes a minimal volumetric scan for the given product
// instance and pass.
func volumeScan(t *testing.T, station int, product string, pass, passCount int) *rapic.Scan {
	var sb strings.Builder
	fmt.Fprintf(&sb, "STNID: %d\n", station)
	fmt.Fprintf(&sb, "PRODUCT: %s\n", product)
	fmt.Fprintf(&sb, "PASS: %d of %d\n", pass, passCount)
	sb.WriteString("IMGFMT: PPI\nANGRES: 1\nRNGRES: 1\nSTARTRNG: 0\nENDRNG: 2\n")
	sb.WriteString("%000AB\nEND RADAR IMAGE\n")
	data := sb.String()

	b := rapic.NewBuffer(len(data)+1, len(data)+1)
	wa, err := b.WriteAcquire(len(data))
	assert.NoError(t, err)
	copy(wa, data)
	assert.NoError(t, b.WriteAdvance(len(data)))

	s := &rapic.Scan{}
	assert.NoError(t, s.Decode(b))
	return s
}

func Test_ParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("20190216123000")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2019, 2, 16, 12, 30, 0, 0, time.UTC), ts)

	_, err = ParseTimestamp("not a timestamp")
	assert.Error(t, err)
}

func Test_VolumeTime(t *testing.T) {
	// hhmm, day of year, two digit year
	ts, err := VolumeTime("VOLUMETRIC [12150471996]")
	assert.Error(t, err) // malformed: tag must be exactly nine digits

	ts, err = VolumeTime("VOLUMETRIC [121504719]")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2019, 2, 16, 12, 15, 0, 0, time.UTC), ts)

	// two digit years below 70 are 20xx, others 19xx
	ts, err = VolumeTime("VOLUMETRIC [000100195]")
	assert.NoError(t, err)
	assert.Equal(t, 1995, ts.Year())

	_, err = VolumeTime("NORMAL x")
	assert.Error(t, err)
}

func Test_VolumeFileName(t *testing.T) {
	ts := time.Date(2019, 2, 16, 12, 15, 0, 0, time.UTC)
	assert.Equal(t, "2_20190216_121500.pvol.h5", VolumeFileName(2, ts))
}

func Test_ValidateScanSet(t *testing.T) {
	product := "VOLUMETRIC [121504719]"
	scans := []*rapic.Scan{
		volumeScan(t, 2, product, 1, 2),
		volumeScan(t, 2, product, 2, 2),
		volumeScan(t, 2, product, 1, 2),
		volumeScan(t, 2, product, 2, 2),
	}
	assert.NoError(t, ValidateScanSet(scans))
}

func Test_ValidateScanSet_Violations(t *testing.T) {
	product := "VOLUMETRIC [121504719]"

	assert.Error(t, ValidateScanSet(nil))

	// mixed product instances
	err := ValidateScanSet([]*rapic.Scan{
		volumeScan(t, 2, product, 1, 2),
		volumeScan(t, 2, "VOLUMETRIC [121604719]", 2, 2),
	})
	assert.Error(t, err)

	// mixed stations
	err = ValidateScanSet([]*rapic.Scan{
		volumeScan(t, 2, product, 1, 2),
		volumeScan(t, 3, product, 2, 2),
	})
	assert.Error(t, err)

	// broken pass ordering
	err = ValidateScanSet([]*rapic.Scan{
		volumeScan(t, 2, product, 1, 3),
		volumeScan(t, 2, product, 3, 3),
	})
	assert.Error(t, err)

	// several violations at once are all reported
	err = ValidateScanSet([]*rapic.Scan{
		volumeScan(t, 2, product, 1, 3),
		volumeScan(t, 3, "VOLUMETRIC [121604719]", 3, 3),
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "product")
	assert.Contains(t, err.Error(), "station")
	assert.Contains(t, err.Error(), "pass ordering")
}

func Test_SplitVolumes(t *testing.T) {
	p1 := "VOLUMETRIC [121504719]"
	p2 := "VOLUMETRIC [122504719]"
	scans := []*rapic.Scan{
		volumeScan(t, 2, p1, 1, 2),
		volumeScan(t, 2, p1, 2, 2),
		volumeScan(t, 2, p2, 1, 2),
		volumeScan(t, 3, p2, 1, 1),
	}
	volumes := SplitVolumes(scans)
	assert.Len(t, volumes, 3)
	assert.Len(t, volumes[0], 2)
	assert.Len(t, volumes[1], 1)
	assert.Len(t, volumes[2], 1)

	ts, err := ScanVolumeTime(volumes[0][0])
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2019, 2, 16, 12, 15, 0, 0, time.UTC), ts)
}

type fakeWriter struct {
	paths []string
}

func (w *fakeWriter) WriteVolume(path string, scans []*rapic.Scan, warn func(string)) (time.Time, error) {
	w.paths = append(w.paths, path)
	return ScanVolumeTime(scans[0])
}

func Test_WriteVolume_Registry(t *testing.T) {
	defer Register(nil)

	_, err := WriteVolume("out.h5", nil, nil)
	assert.Error(t, err)

	w := &fakeWriter{}
	Register(w)
	ts, err := WriteVolume("out.h5", []*rapic.Scan{
		volumeScan(t, 2, "VOLUMETRIC [121504719]", 1, 1),
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"out.h5"}, w.paths)
	assert.Equal(t, 2019, ts.Year())
}
