package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/skypro1111/ladiocast/internal/directory"
	"github.com/skypro1111/ladiocast/internal/protocol"
)

var listeners atomic.Int32

func handleSource(conn net.Conn, response string) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	dec := japanese.ShiftJIS.NewDecoder()
	log.Printf("🎙️  SOURCE CONNECTION FROM %s", conn.RemoteAddr())
	log.Printf("  ═══════════════════════════════════")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			log.Printf("  header read failed: %v", err)
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if decoded, _, err := transform.String(dec, line); err == nil {
			line = decoded
		}
		log.Printf("    %s", line)
	}
	log.Printf("  ═══════════════════════════════════")

	if _, err := io.WriteString(conn, response+protocol.LineTerminator); err != nil {
		log.Printf("  response write failed: %v", err)
		return
	}
	log.Printf("  ↩️  %s", response)
	if response != protocol.ResponseOK {
		return
	}

	listeners.Add(1)
	defer listeners.Add(-1)

	start := time.Now()
	var total int64
	buf := make([]byte, 16*1024)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, err := r.Read(buf)
		total += int64(n)
		if err != nil {
			log.Printf("✅ STREAM ENDED: %d bytes in %s (%v)", total, time.Since(start).Truncate(time.Second), err)
			return
		}
		select {
		case <-ticker.C:
			kbps := float64(total*8) / time.Since(start).Seconds() / 1000
			log.Printf("  📈 %d bytes received, %.1f kbps", total, kbps)
		default:
		}
	}
}

func main() {
	sourceAddr := flag.String("source", ":8000", "address for SOURCE connections")
	directoryAddr := flag.String("directory", ":9000", "address for the JSON server list")
	response := flag.String("response", protocol.ResponseOK, "status line sent to every source")
	flag.Parse()

	ln, err := net.Listen("tcp", *sourceAddr)
	if err != nil {
		log.Fatal("Source listener failed to start:", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	http.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]directory.Server{
			"servers": {{Name: "local", Host: "127.0.0.1", Port: port, Listeners: int(listeners.Load())}},
		})
	})
	go func() {
		log.Printf("📡 Directory: http://localhost%s/servers", *directoryAddr)
		if err := http.ListenAndServe(*directoryAddr, nil); err != nil {
			log.Fatal("Directory server failed to start:", err)
		}
	}()

	log.Printf("🚀 Test Streaming Server accepting sources on port %d", port)
	log.Printf("💡 Set directory.source: http and directory.url: http://localhost%s/servers", *directoryAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Fatal("Accept failed:", err)
		}
		go handleSource(conn, *response)
	}
}
