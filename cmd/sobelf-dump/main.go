// Command sobelf-dump prints the envelopes captured in a record log.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/grailbio/base/log"

	"sobelf-go/internal/output"
	"sobelf-go/internal/wire"
)

func main() {
	var (
		path    = flag.String("path", "", "Path to a record log .bin file")
		limit   = flag.Int("limit", 0, "Number of records to dump, 0 for all")
		raw     = flag.Bool("raw", false, "Print the CBOR envelope as JSON instead of a summary")
		regions = flag.Bool("regions", true, "List the region headers of payload messages")
	)
	log.AddFlags()
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}
	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open record log: %v", err)
	}
	defer f.Close()

	rr, err := output.NewRecordReader(f)
	if err != nil {
		log.Fatal(err)
	}
	counts := make(map[wire.Kind]int)
	count := 0
	for ; *limit == 0 || count < *limit; count++ {
		e, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("record %d: %v", count, err)
		}
		stamp := e.Time.Format(time.RFC3339Nano)
		if *raw {
			var decoded map[string]any
			if err := cbor.Unmarshal(e.Payload, &decoded); err != nil {
				log.Error.Printf("record %d: CBOR decode error: %v", count, err)
				continue
			}
			delete(decoded, "payload")
			pretty, err := json.MarshalIndent(decoded, "", "  ")
			if err != nil {
				log.Error.Printf("record %d: JSON encode error: %v", count, err)
				continue
			}
			fmt.Printf("record %d %s\n%s\n", count, stamp, pretty)
			continue
		}

		m, err := wire.Decode(e.Payload)
		if err != nil {
			log.Error.Printf("record %d: %v", count, err)
			continue
		}
		counts[m.Kind]++
		fmt.Printf("record %d %s %s\n", count, stamp, m)
		if *regions && m.Kind == wire.RegionPayload {
			hs, err := wire.Headers(m.Payload)
			if err != nil {
				log.Error.Printf("record %d: %v", count, err)
				continue
			}
			for _, h := range hs {
				fmt.Printf("  frame %d region %d/%d %dx%d\n", h.FrameID, h.ID, h.K, h.Width, h.Height)
			}
		}
	}
	for k := wire.WorkSplit; k <= wire.ConvergenceVote; k++ {
		if n := counts[k]; n > 0 {
			fmt.Printf("%s: %d\n", k, n)
		}
	}
	log.Printf("%d record(s) read from %s", count, *path)
}
