//go:build rp2040

package main

import (
	"errors"
	"machine"
)

var (
	errImageTooLarge = errors.New("flash: image larger than one erase block")
	errBridgeActive  = errors.New("flash: bridge is energized")
)

// FlashStorage keeps the configuration image in the last erase block of
// the flash area TinyGo leaves free after the program. It implements
// core.Storage.
type FlashStorage struct {
	dev   machine.BlockDevice
	block int64
	size  int64

	// Energized reports whether the bridge is switching. Erasing stalls
	// every interrupt, so writes are refused while it returns true.
	Energized func() bool
}

// NewFlashStorage reserves the last erase block of machine.Flash.
func NewFlashStorage() *FlashStorage {
	size := machine.Flash.EraseBlockSize()
	blocks := machine.Flash.Size() / size
	return &FlashStorage{
		dev:   machine.Flash,
		block: blocks - 1,
		size:  size,
	}
}

// ReadImage fills p from the start of the block. Erased flash reads back
// as 0xFF, which fails the image checksum.
func (s *FlashStorage) ReadImage(p []byte) (int, error) {
	if int64(len(p)) > s.size {
		p = p[:s.size]
	}
	return s.dev.ReadAt(p, s.block*s.size)
}

// WriteImage erases the block and programs p.
func (s *FlashStorage) WriteImage(p []byte) error {
	if int64(len(p)) > s.size {
		return errImageTooLarge
	}
	if s.Energized != nil && s.Energized() {
		return errBridgeActive
	}
	if err := s.dev.EraseBlocks(s.block, 1); err != nil {
		return err
	}
	_, err := s.dev.WriteAt(p, s.block*s.size)
	return err
}
