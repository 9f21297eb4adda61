// ionmap-export - Write coefficient tables to disk
//
// Exports the built-in monthly ionospheric coefficient tables as
// ionmap-MM.json.gz files, the layout hf-predict loads from coefficient_dir.
// With -verify each written file is read back and validated.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/ionmap-export ./cmd/ionmap-export

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/pgzip"

	"github.com/KI7MT/ki7mt-hf-predict/internal/ionmap"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

var (
	outDir   = flag.String("dest", "", "Destination directory (required)")
	plain    = flag.Bool("plain", false, "Write uncompressed .json files")
	verify   = flag.Bool("verify", true, "Read each file back after writing")
	force    = flag.Bool("force", false, "Overwrite existing files")
	dryRun   = flag.Bool("dry-run", false, "List the files that would be written")
	gzLevel  = flag.Int("level", pgzip.DefaultCompression, "gzip compression level (1-9)")
	gzBlocks = flag.Int("blocks", 4, "pgzip blocks in flight")
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ionmap-export v%s - Coefficient Table Export\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s -dest <dir> [OPTIONS]\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -dest /var/lib/ki7mt-hf-predict/ionmap\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -dest ./tables -plain -force\n", os.Args[0])
	}

	flag.Parse()

	if *outDir == "" {
		fmt.Fprintf(os.Stderr, "Error: -dest is required\n")
		flag.Usage()
		os.Exit(1)
	}

	log.Println("=========================================================")
	log.Printf("Ionmap Export v%s", Version)
	log.Println("=========================================================")
	log.Printf("Destination: %s", *outDir)

	if !*dryRun {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			log.Fatalf("Failed to create %s: %v", *outDir, err)
		}
	}

	startTime := time.Now()
	var written, skipped int
	var totalBytes int64

	for _, t := range ionmap.Builtin() {
		name := ionmap.FileName(t.Month)
		if !*plain {
			name += ".gz"
		}
		path := filepath.Join(*outDir, name)

		if !*force {
			if _, err := os.Stat(path); err == nil {
				log.Printf("  %s exists, skipping", name)
				skipped++
				continue
			}
		}
		if *dryRun {
			log.Printf("  would write %s", name)
			continue
		}

		n, err := writeTable(path, t)
		if err != nil {
			log.Fatalf("Write %s: %v", path, err)
		}
		if *verify {
			back, err := ionmap.ReadFile(path)
			if err != nil {
				log.Fatalf("Verify %s: %v", path, err)
			}
			if back.Month != t.Month {
				log.Fatalf("Verify %s: month %d, want %d", path, back.Month, t.Month)
			}
		}
		log.Printf("  %s (%d bytes)", name, n)
		written++
		totalBytes += n
	}

	if *verify && !*dryRun {
		tables, err := ionmap.LoadDir(*outDir)
		if err != nil {
			log.Fatalf("Load %s: %v", *outDir, err)
		}
		if _, err := ionmap.New(tables); err != nil {
			log.Fatalf("Tables in %s do not form a complete map: %v", *outDir, err)
		}
	}

	log.Println("=========================================================")
	log.Println("Complete")
	log.Println("=========================================================")
	log.Printf("Written:  %d", written)
	log.Printf("Skipped:  %d", skipped)
	log.Printf("Bytes:    %d", totalBytes)
	log.Printf("Elapsed:  %v", time.Since(startTime).Round(time.Millisecond))
}

// writeTable writes t to path, gzip-compressed unless -plain, and returns the
// file size.
func writeTable(path string, t *ionmap.MonthTable) (int64, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp)

	if *plain {
		err = ionmap.WriteTable(f, t)
	} else {
		err = writeGzip(f, t)
	}
	if err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func writeGzip(f *os.File, t *ionmap.MonthTable) error {
	gz, err := pgzip.NewWriterLevel(f, *gzLevel)
	if err != nil {
		return err
	}
	if err := gz.SetConcurrency(1<<20, *gzBlocks); err != nil {
		return err
	}
	if err := ionmap.WriteTable(gz, t); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
