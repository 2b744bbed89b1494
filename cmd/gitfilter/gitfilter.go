// gitfilter program
//
// This reads a git fast-export stream and writes an equivalent stream
// with every blob's content replaced by a short deterministic marker,
// preserving blob sizes structure and every commit/tag/reset record
// byte-for-byte otherwise. It exists to turn a sensitive repository's
// export into a shareable fixture for testing the rewrite engine
// without leaking real file content - the teacher's original use for
// this binary, rebuilt here on top of the shared stream/record decode
// layer instead of a bespoke Perforce-tree walk.
package main

import (
	"fmt"
	"io"
	"os"

	libfastimport "github.com/rcowham/go-libgitfastimport"

	"github.com/perforce/p4prometheus/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rcowham/gitfilterrs/record"
	"github.com/rcowham/gitfilterrs/stream"
)

func main() {
	var (
		inputFile = kingpin.Arg(
			"input",
			"Fast-export file to anonymize (default stdin).",
		).String()
		outputFile = kingpin.Flag(
			"output",
			"Fast-import file to write (default stdout).",
		).Short('o').String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("gitfilter")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Replaces blob content in a fast-export stream with size-preserving markers, leaving history structure untouched.\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug {
		logger.Level = logrus.DebugLevel
	}

	in := os.Stdin
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatalf("opening %s: %v", *inputFile, err)
		}
		defer f.Close()
		in = f
	}
	out := io.Writer(os.Stdout)
	if *outputFile != "" {
		f, err := os.OpenFile(*outputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			logger.Fatalf("creating %s: %v", *outputFile, err)
		}
		defer f.Close()
		out = f
	}

	if err := anonymize(in, out); err != nil {
		logger.Fatalf("anonymize: %v", err)
	}
}

// anonymize drives the read/rewrite/emit loop: every blob's data is
// replaced by a marker string padded to its original length so later
// pipeline stages that key off blob size behave identically; commits,
// tags, and resets pass through unchanged.
func anonymize(r io.Reader, w io.Writer) error {
	source := stream.NewSource(r, nil)
	sink := stream.NewSink(w, nil)
	defer source.Close()
	defer sink.Close()

	count := 0
	for {
		cmd, err := source.Frontend.ReadCmd()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		b, ok := cmd.(libfastimport.CmdBlob)
		if !ok {
			if err := sink.Backend.Do(cmd); err != nil {
				return err
			}
			continue
		}
		blob := record.FromCmdBlob(b)
		blob.Data = anonymizedContent(len(blob.Data), count)
		count++
		if err := sink.Backend.Do(blob.ToCmdBlob()); err != nil {
			return err
		}
	}
	return nil
}

// anonymizedContent builds a deterministic, non-sensitive payload of
// exactly n bytes: a short "blob N" marker repeated to fill the length,
// so anything further down the pipeline that inspects blob size (the
// --max-blob-size threshold, chiefly) sees the same decisions it would
// have against the real content.
func anonymizedContent(n, index int) []byte {
	marker := []byte(fmt.Sprintf("blob %d\n", index))
	if len(marker) >= n {
		return marker[:n]
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = marker[i%len(marker)]
	}
	return out
}
