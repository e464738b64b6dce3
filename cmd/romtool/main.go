// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/log"

	"github.com/usedbytes/rom-tools/lib/config"
	"github.com/usedbytes/rom-tools/lib/rom"
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Device ROMs under /sys need a "1" written to them before their contents
// can be read out.
func enableRead(fname string) error {
	if !strings.HasPrefix(fname, "/sys") {
		return nil
	}

	f, err := os.OpenFile(fname, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrap(err, "enabling ROM read")
	}
	defer f.Close()

	if _, err := f.Write([]byte("1")); err != nil {
		return errors.Wrap(err, "enabling ROM read")
	}

	return nil
}

func loadRom(ctx *cli.Context) (*rom.Rom, error) {
	if ctx.Args().Len() != 1 {
		return nil, fmt.Errorf("ROM_FILE is required")
	}
	fname := ctx.Args().First()

	err := enableRead(fname)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrap(err, "opening ROM file")
	}
	defer f.Close()

	var flags rom.LoadFlags
	if ctx.Bool("blank-serials") {
		flags |= rom.BlankSerials
	}

	// Device nodes don't report a size, so only regular files get a
	// progress bar
	var rd io.Reader = f
	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
		bar := pb.Full.Start64(fi.Size())
		defer bar.Finish()
		rd = bar.NewProxyReader(f)
	}

	return rom.NewWithSkip(rd, uint32(ctx.Uint("skip")), flags)
}

func lookupName(ctx *cli.Context, r *rom.Rom) (string, error) {
	if !ctx.IsSet("db") {
		return "", nil
	}

	db, err := config.LoadFile(ctx.String("db"))
	if err != nil {
		return "", err
	}

	dev := db.Lookup(r.Vendor(), r.Model())
	if dev == nil {
		return "", nil
	}

	return dev.Name, nil
}

func printChain(r *rom.Rom) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"#", "Offset", "Size", "Type", "Device", "Last", "CRC16"})
	for i, hdr := range r.Headers() {
		tbl.AppendRow(table.Row{
			i,
			fmt.Sprintf("0x%06x", hdr.RomOffset),
			humanize.IBytes(uint64(len(hdr.RawData()))),
			rom.CodeTypeString(hdr.CodeType),
			fmt.Sprintf("0x%04x:0x%04x", hdr.VendorID, hdr.DeviceID),
			hdr.LastImage == 0x80,
			fmt.Sprintf("0x%04x", crc16.Checksum(hdr.RawData(), crcTable)),
		})
	}
	tbl.Render()
}

func infoAction(ctx *cli.Context) error {
	r, err := loadRom(ctx)
	if err != nil {
		return err
	}

	name, err := lookupName(ctx, r)
	if err != nil {
		return err
	}

	log.Printf("Kind:    %s\n", r.Kind())
	log.Printf("Device:  0x%04x:0x%04x %s\n", r.Vendor(), r.Model(), name)
	log.Printf("Version: %s\n", r.Version())
	log.Printf("GUID:    %s\n", r.GUID())
	log.Printf("SHA1:    %s\n", r.Checksum())
	printChain(r)

	return nil
}

type manifestImage struct {
	File   string `toml:"file"`
	Offset uint32 `toml:"offset"`
	Size   int    `toml:"size"`
	CRC16  uint16 `toml:"crc16"`
}

type manifest struct {
	Kind    string          `toml:"kind"`
	Device  string          `toml:"device"`
	Version string          `toml:"version"`
	GUID    string          `toml:"guid"`
	SHA1    string          `toml:"sha1"`
	Images  []manifestImage `toml:"image"`
}

func writeManifest(r *rom.Rom, dir string) error {
	m := manifest{
		Kind:    r.Kind().String(),
		Device:  fmt.Sprintf("0x%04x:0x%04x", r.Vendor(), r.Model()),
		Version: r.Version(),
		GUID:    r.GUID(),
		SHA1:    r.Checksum(),
	}
	for i, hdr := range r.Headers() {
		if len(hdr.RawData()) == 0 {
			continue
		}
		m.Images = append(m.Images, manifestImage{
			File:   fmt.Sprintf("%02d.bin", i),
			Offset: hdr.RomOffset,
			Size:   len(hdr.RawData()),
			CRC16:  crc16.Checksum(hdr.RawData(), crcTable),
		})
	}

	f, err := os.Create(filepath.Join(dir, "manifest.toml"))
	if err != nil {
		return errors.Wrap(err, "writing manifest")
	}
	defer f.Close()

	err = toml.NewEncoder(f).Encode(&m)
	if err != nil {
		return errors.Wrap(err, "writing manifest")
	}

	return nil
}

func extractAction(ctx *cli.Context) error {
	r, err := loadRom(ctx)
	if err != nil {
		return err
	}

	dir := ctx.String("outdir")
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return errors.Wrap(err, "creating output directory")
	}

	err = r.ExtractAll(dir)
	if err != nil {
		return err
	}

	return writeManifest(r, dir)
}

func main() {
	app := &cli.App{
		Name:  "romtool",
		Usage: "A tool for poking at PCI Option ROM images",
		// Just ignore errors - we'll handle them ourselves in main()
		ExitErrHandler: func(c *cli.Context, e error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "verbose",
				Aliases:  []string{"v"},
				Usage:    "Enable more output",
				Required: false,
				Value:    false,
			},
		},
	}

	romFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:     "blank-serials",
			Usage:    "Blank embedded PPID serial numbers, fixing up checksums",
			Required: false,
			Value:    false,
		},
		&cli.UintFlag{
			Name:     "skip",
			Usage:    "Skip a leading vendor header of this many bytes",
			Required: false,
			Value:    0,
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "info",
			ArgsUsage: "ROM_FILE",
			Action:    infoAction,
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     "db",
					Usage:    "TOML device database for friendly names",
					Required: false,
				},
			}, romFlags...),
		},
		{
			Name:      "extract",
			ArgsUsage: "ROM_FILE",
			Action:    extractAction,
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     "outdir",
					Aliases:  []string{"o"},
					Usage:    "Directory to extract images into",
					Required: false,
					Value:    ".",
				},
			}, romFlags...),
		},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetUseLog(false)

		log.SetVerbose(ctx.Bool("verbose"))
		log.Verboseln("Extra output enabled.")
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Println("ERROR:", err)
		if v, ok := err.(cli.ExitCoder); ok {
			os.Exit(v.ExitCode())
		} else {
			os.Exit(1)
		}
	}
}
