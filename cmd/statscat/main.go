// statscat concatenates one or more stats-writer CSV logs (spec §6, written
// by package statswriter) to stdout as a single CSV stream, transparently
// decompressing any input named *.zst. It is the rewritten counterpart of
// the teacher's cmd/csvtool, which did the same "open possibly-compressed
// per-run logs, re-marshal to one CSV" job for inetdiag snapshot rows
// instead of xsocket.StatsRow.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/rtx"

	"github.com/srtkit/xtransmit/xsocket"
	"github.com/srtkit/xtransmit/zstd"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func main() {
	socketFilter := flag.String("socket", "", "only emit rows for this SocketID; empty emits all")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: statscat [-socket id] file.csv[.zst]...")
		os.Exit(2)
	}

	var all []*xsocket.StatsRow
	for _, path := range flag.Args() {
		rows, err := readRows(path)
		if err != nil {
			log.Fatalf("statscat: %s: %v", path, err)
		}
		all = append(all, rows...)
	}

	if *socketFilter != "" {
		filtered := all[:0]
		for _, r := range all {
			if r.SocketID == *socketFilter {
				filtered = append(filtered, r)
			}
		}
		all = filtered
	}

	out, err := gocsv.MarshalString(all)
	rtx.Must(err, "statscat: marshal")
	fmt.Print(out)
}

func readRows(path string) ([]*xsocket.StatsRow, error) {
	var r io.Reader
	if strings.HasSuffix(path, ".zst") {
		rc := zstd.NewReader(path)
		defer rc.Close()
		r = rc
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var rows []*xsocket.StatsRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
