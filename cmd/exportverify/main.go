package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/cartomix/choreo/internal/choreoexport"
)

// exportverify validates a checksum manifest emitted by an exported
// choreography bundle.
func main() {
	manifest := flag.String("manifest", "", "path to checksums txt (e.g., choreography-checksums.txt)")
	dir := flag.String("dir", "", "directory containing files (defaults to manifest dir)")
	flag.Parse()

	if *manifest == "" {
		log.Fatal("manifest path required")
	}

	base := *dir
	if base == "" {
		base = filepath.Dir(*manifest)
	}

	if err := choreoexport.VerifyChecksums(*manifest, base); err != nil {
		log.Fatalf("verify failed: %v", err)
	}

	log.Printf("checksums OK for manifest %s", *manifest)
}
