// Command diskfs brings up the full flash/FTL/filesystem stack over a
// memory-mapped backing file, mirroring the reference emulator's
// init/teardown sequence.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/YaPish/diploma-file-system/flash"
	"github.com/YaPish/diploma-file-system/flashfs"
	"github.com/YaPish/diploma-file-system/ftl"
	"github.com/YaPish/diploma-file-system/internal/emulator"
)

const backingPath = "flash.bin"

func run() error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	em, err := emulator.Open(backingPath, flash.Capacity)
	if err != nil {
		return errors.Wrap(err, "open emulator")
	}
	defer em.Close()

	dev, err := flash.Open(em, flash.WithLogger(log))
	if err != nil {
		return errors.Wrap(err, "open flash device")
	}

	tl, err := ftl.Open(dev, ftl.WithLogger(log))
	if err != nil {
		return errors.Wrap(err, "open ftl")
	}

	fs, err := flashfs.New(tl, flashfs.WithLogger(log))
	if err != nil {
		return errors.Wrap(err, "open filesystem")
	}
	return fs.Close()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
