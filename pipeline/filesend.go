package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/srtkit/xtransmit/xsocket"
)

// File-transfer wire format, per spec §6: byte 0 carries a 2-bit status
// (bit0 = first packet of this file, bit1 = last packet of this file); the
// first packet of a file is followed by its NUL-terminated relative path,
// then payload; every other packet carries payload only.
const (
	flagFirst byte = 1 << 0
	flagLast  byte = 1 << 1
)

// FileSendConfig configures the file-send pipeline, per spec §4.12.
type FileSendConfig struct {
	// Root is the file or directory enumerated and sent. A single file
	// is sent under its base name.
	Root        string
	MessageSize int
}

// FileSend enumerates cfg.Root and sends every regular file found under it
// (or cfg.Root itself, if it names a file) as a sequence of framed packets,
// then drains the connection's send buffer before returning, per spec
// §4.12. It stops early, without error, if cancel is set between files.
func FileSend(conn xsocket.Socket, cfg FileSendConfig, cancel *atomic.Bool) error {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if err := sendFile(conn, cfg.Root, filepath.Base(cfg.Root), cfg.MessageSize, cancel); err != nil {
			return err
		}
		return drainSendBuffer(conn, cancel)
	}

	err = filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if cancel.Load() {
			return nil
		}
		rel, err := filepath.Rel(cfg.Root, path)
		if err != nil {
			return err
		}
		return sendFile(conn, path, rel, cfg.MessageSize, cancel)
	})
	if err != nil {
		return err
	}
	return drainSendBuffer(conn, cancel)
}

func sendFile(conn xsocket.Socket, path, rel string, messageSize int, cancel *atomic.Bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pathHeader := append([]byte(rel), 0)

	first := true
	for {
		if cancel.Load() {
			return nil
		}
		hdrLen := 1
		if first {
			hdrLen += len(pathHeader)
		}
		payloadCap := messageSize - hdrLen
		if payloadCap <= 0 {
			return xsocket.ErrBufferTooSmall
		}
		n := len(data)
		if n > payloadCap {
			n = payloadCap
		}
		last := n == len(data)

		var status byte
		if first {
			status |= flagFirst
		}
		if last {
			status |= flagLast
		}

		pkt := make([]byte, hdrLen+n)
		pkt[0] = status
		off := 1
		if first {
			copy(pkt[1:], pathHeader)
			off += len(pathHeader)
		}
		copy(pkt[off:], data[:n])

		if err := writeFull(conn, pkt, cancel); err != nil {
			return err
		}

		data = data[n:]
		first = false
		if last {
			return nil
		}
	}
}

// drainSendBuffer polls SndBufBytes (when conn implements it) until it
// reaches zero, per spec §4.12's "poll getsndbuffer until zero" file-send
// closing step. Sockets with no send-buffer tracking return immediately.
func drainSendBuffer(conn xsocket.Socket, cancel *atomic.Bool) error {
	sp, ok := conn.(xsocket.SndBufProvider)
	if !ok {
		return nil
	}
	for sp.SndBufBytes() > 0 {
		if cancel.Load() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
