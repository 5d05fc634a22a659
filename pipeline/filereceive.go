package pipeline

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/srtkit/xtransmit/xsocket"
)

// FileReceiveConfig configures the file-receive pipeline, per spec §4.12.
type FileReceiveConfig struct {
	// Dest is the directory new files are written under.
	Dest        string
	MessageSize int
}

// fileReceiveState tracks the in-progress file across packets.
type fileReceiveState struct {
	f         *os.File
	rel       string
	bytes     int64
	startedAt time.Time
}

// FileReceive reads framed file-transfer packets (per spec §6) from conn
// until cancel is set or the peer closes the connection, creating
// subdirectories as needed under cfg.Dest and truncating each destination
// file at its first packet. It emits a rate/duration summary line to the
// log on every end-of-file packet, per spec §4.12.
func FileReceive(conn xsocket.Socket, cfg FileReceiveConfig, cancel *atomic.Bool) error {
	var st *fileReceiveState
	defer func() {
		if st != nil {
			st.f.Close()
		}
	}()

	buf := make([]byte, cfg.MessageSize)
	for !cancel.Load() {
		n, err := conn.Read(buf, time.Second)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		pkt := buf[:n]
		status := pkt[0]
		rest := pkt[1:]

		if status&flagFirst != 0 {
			nulIdx := bytes.IndexByte(rest, 0)
			if nulIdx < 0 {
				return fmt.Errorf("pipeline: filereceive: first packet missing NUL-terminated path")
			}
			rel := string(rest[:nulIdx])
			rest = rest[nulIdx+1:]

			f, err := openForTruncation(cfg.Dest, rel)
			if err != nil {
				return err
			}
			if st != nil {
				st.f.Close()
			}
			st = &fileReceiveState{f: f, rel: rel, startedAt: time.Now()}
		}
		if st == nil {
			return fmt.Errorf("pipeline: filereceive: packet before any first-of-file packet")
		}
		if len(rest) > 0 {
			if _, err := st.f.Write(rest); err != nil {
				return err
			}
			st.bytes += int64(len(rest))
		}
		if status&flagLast != 0 {
			elapsed := time.Since(st.startedAt)
			rate := float64(st.bytes) / elapsed.Seconds() / 1e6
			log.Printf("pipeline: filereceive: %s: %d bytes in %s (%.3f MB/s)", st.rel, st.bytes, elapsed, rate)
			st.f.Close()
			st = nil
		}
	}
	return nil
}

// openForTruncation creates any missing subdirectories under dest and opens
// rel (joined under dest, after rejecting any path that would escape it)
// for truncating write, per spec §4.12.
func openForTruncation(dest, rel string) (*os.File, error) {
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("pipeline: filereceive: unsafe relative path %q", rel)
	}
	full := filepath.Join(dest, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}
