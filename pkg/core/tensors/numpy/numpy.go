// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package numpy reads and writes tensors in NumPy's .npy and .npz file formats.
//
// It is used to dump the inputs and outputs of failing test cases, so they can be inspected
// (or replayed) with NumPy.
package numpy

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/pkg/errors"
)

// FromNpyFile reads a .npy file and returns a tensors.Tensor.
func FromNpyFile(filePath string) (*tensors.Tensor, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npy file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	return FromNpyReader(file)
}

// FromNpyReader reads a .npy file from an io.Reader and returns a tensors.Tensor.
// Only little-endian, C-ordered arrays are supported.
func FromNpyReader(r io.Reader) (*tensors.Tensor, error) {
	magic := make([]byte, 6)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Wrapf(err, "failed to read magic string")
	}
	if string(magic) != "\x93NUMPY" {
		return nil, errors.Errorf("invalid .npy file format: magic string mismatch")
	}

	version := make([]byte, 2)
	if _, err := io.ReadFull(r, version); err != nil {
		return nil, errors.Wrapf(err, "failed to read version")
	}

	var headerLen uint32
	switch {
	case version[0] == 1:
		lenBytes := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v1.0)")
		}
		headerLen = uint32(binary.LittleEndian.Uint16(lenBytes))
	case version[0] >= 2:
		lenBytes := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v2.0+)")
		}
		headerLen = binary.LittleEndian.Uint32(lenBytes)
		if headerLen > 0xFFFF {
			return nil, errors.Errorf("header length %d exceeds uint16 max", headerLen)
		}
	default:
		return nil, errors.Errorf("unsupported .npy version: %d.%d", version[0], version[1])
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.Wrapf(err, "failed to read header")
	}
	dtypeStr, dims, fortranOrder, err := parseNpyHeader(string(headerBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse .npy header")
	}
	if strings.HasPrefix(dtypeStr, ">") {
		return nil, errors.Errorf("big-endian .npy files (%q) are not supported", dtypeStr)
	}
	if fortranOrder && len(dims) > 1 {
		return nil, errors.Errorf("fortran-ordered .npy files are not supported")
	}
	dtype, err := npyDTypeToDType(dtypeStr)
	if err != nil {
		return nil, err
	}
	shape := shapes.Shape{DType: dtype, Dimensions: dims}
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	tensor := tensors.FromShape(shape)
	var readErr error
	err = tensor.MutableBytes(func(data []byte) {
		if _, readErr = io.ReadFull(r, data); readErr != nil {
			readErr = errors.Wrapf(readErr, "failed to read tensor data (expected %d bytes)", len(data))
		}
	})
	if err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	return tensor, nil
}

// parseNpyHeader extracts dtype, shape, and fortran_order from the .npy header string.
// This is a simplified parser, enough for the headers written by NumPy and by ToNpyWriter.
func parseNpyHeader(header string) (dtype string, shape []int, fortranOrder bool, err error) {
	reDescr := regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	mDescr := reDescr.FindStringSubmatch(header)
	if len(mDescr) < 2 {
		err = errors.Errorf("could not find 'descr' in header: %q", header)
		return
	}
	dtype = mDescr[1]

	reFortran := regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	mFortran := reFortran.FindStringSubmatch(header)
	if len(mFortran) < 2 {
		err = errors.Errorf("could not find 'fortran_order' in header: %q", header)
		return
	}
	fortranOrder = mFortran[1] == "True"

	reShape := regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
	mShape := reShape.FindStringSubmatch(header)
	if len(mShape) < 2 {
		err = errors.Errorf("could not find 'shape' in header: %q", header)
		return
	}
	shape = []int{}
	for _, p := range strings.Split(mShape[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			// Trailing comma, like in "(10,)".
			continue
		}
		val, pErr := strconv.Atoi(p)
		if pErr != nil {
			err = errors.Wrapf(pErr, "invalid shape value %q in header", p)
			return
		}
		shape = append(shape, val)
	}
	return
}

var npyNames = map[dtypes.DType]string{
	dtypes.Int8:    "<i1",
	dtypes.Uint8:   "<u1",
	dtypes.Int16:   "<i2",
	dtypes.Uint16:  "<u2",
	dtypes.Int32:   "<i4",
	dtypes.Uint32:  "<u4",
	dtypes.Int64:   "<i8",
	dtypes.Uint64:  "<u8",
	dtypes.Float16: "<f2",
	dtypes.Float32: "<f4",
	dtypes.Float64: "<f8",
}

// npyDTypeToDType converts a NumPy dtype string to a dtypes.DType.
func npyDTypeToDType(npyType string) (dtypes.DType, error) {
	suffix := strings.TrimLeft(npyType, "<>=|")
	for dtype, name := range npyNames {
		if name[1:] == suffix {
			return dtype, nil
		}
	}
	return dtypes.InvalidDType, errors.Errorf("unsupported NumPy dtype: %s", npyType)
}

// ToNpyWriter serializes a tensors.Tensor to an io.Writer in .npy format (version 1.0).
func ToNpyWriter(tensor *tensors.Tensor, w io.Writer) error {
	shape := tensor.Shape()
	dtype, found := npyNames[shape.DType]
	if !found {
		return errors.Errorf("unsupported DType for .npy: %s", shape.DType)
	}

	var shapeTuple string
	switch shape.Rank() {
	case 0:
		shapeTuple = "()"
	case 1:
		shapeTuple = fmt.Sprintf("(%d,)", shape.Dimensions[0])
	default:
		dimsStr := make([]string, shape.Rank())
		for i, dim := range shape.Dimensions {
			dimsStr[i] = strconv.Itoa(dim)
		}
		shapeTuple = fmt.Sprintf("(%s)", strings.Join(dimsStr, ", "))
	}

	// Magic (6) + Version (2) + HeaderLen (2) = 10 bytes of preamble; the header is padded
	// with spaces so that preamble+header is a multiple of 16, and ends with a newline.
	var headerBuf bytes.Buffer
	fmt.Fprintf(&headerBuf, "{'descr': '%s', 'fortran_order': False, 'shape': %s, }", dtype, shapeTuple)
	for (10+headerBuf.Len()+1)%16 != 0 {
		headerBuf.WriteByte(' ')
	}
	headerBuf.WriteByte('\n')

	preamble := make([]byte, 10)
	copy(preamble, "\x93NUMPY")
	preamble[6], preamble[7] = 1, 0
	binary.LittleEndian.PutUint16(preamble[8:], uint16(headerBuf.Len()))
	if _, err := w.Write(preamble); err != nil {
		return errors.Wrapf(err, "failed to write .npy preamble")
	}
	if _, err := w.Write(headerBuf.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write header")
	}
	var writeErr error
	tensor.ConstBytes(func(data []byte) {
		if _, writeErr = w.Write(data); writeErr != nil {
			writeErr = errors.Wrapf(writeErr, "failed to write tensor data")
		}
	})
	return writeErr
}

// ToNpyFile serializes a tensors.Tensor to a .npy file.
func ToNpyFile(tensor *tensors.Tensor, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npy file")
	}
	if err = ToNpyWriter(tensor, file); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "failed to close %q", filePath)
}

// ToNpzFile serializes the tensors to a .npz file, one .npy entry per tensor, in sorted name order.
func ToNpzFile(tensorsMap map[string]*tensors.Tensor, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npz file")
	}
	if err = ToNpzWriter(tensorsMap, file); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "failed to close %q", filePath)
}

// ToNpzWriter serializes the tensors to an io.Writer as a .npz archive.
func ToNpzWriter(tensorsMap map[string]*tensors.Tensor, w io.Writer) error {
	zipWriter := zip.NewWriter(w)
	names := make([]string, 0, len(tensorsMap))
	for name := range tensorsMap {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		npyName := name + ".npy"
		fileWriter, err := zipWriter.Create(npyName)
		if err != nil {
			return errors.Wrapf(err, "failed to create %q in .npz archive", npyName)
		}
		if err := ToNpyWriter(tensorsMap[name], fileWriter); err != nil {
			return errors.WithMessagef(err, "failed to write tensor %q to .npz archive", name)
		}
	}
	return errors.Wrapf(zipWriter.Close(), "failed to close zip archive")
}

// FromNpzFile reads a .npz file and returns a map of tensor names to tensors.Tensor.
func FromNpzFile(filePath string) (map[string]*tensors.Tensor, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npz file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat .npz file %q", filePath)
	}
	return FromNpzReader(file, info.Size())
}

// FromNpzReader reads a .npz archive, returning a map of tensor names to tensors.Tensor.
func FromNpzReader(r io.ReaderAt, size int64) (map[string]*tensors.Tensor, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create zip reader for `.npz`")
	}
	results := make(map[string]*tensors.Tensor)
	for _, f := range zipReader.File {
		cleanPath := path.Clean(f.Name)
		if path.IsAbs(cleanPath) || strings.HasPrefix(cleanPath, "..") {
			return nil, errors.Errorf("invalid path in .npz archive: %q (normalized to %q)", f.Name, cleanPath)
		}
		if !strings.HasSuffix(f.Name, ".npy") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %q within .npz", f.Name)
		}
		tensor, err := FromNpyReader(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to read tensor %q from .npz", f.Name)
		}
		results[strings.TrimSuffix(f.Name, ".npy")] = tensor
	}
	return results, nil
}
