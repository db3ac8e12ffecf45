package timeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ExportFileName is the suggested name of the zipped track download.
const ExportFileName = "timeline_tracks.zip"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ZipTracks writes one tab-separated file per event type into a zip archive.
// Each file has PATIENT_ID, START_DATE, STOP_DATE and EVENT_TYPE columns
// followed by the event type's attribute keys in sorted order.
func ZipTracks(w io.Writer, events []ClinicalEvent) error {
	var (
		order  []string
		groups = map[string][]ClinicalEvent{}
	)
	for _, e := range events {
		key := strings.ToUpper(e.EventType)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	zw := zip.NewWriter(w)
	used := map[string]bool{}
	for _, key := range order {
		f, err := zw.Create(uniqueFileName(trackFileName(key), used))
		if err != nil {
			return fmt.Errorf("create %s: %w", key, err)
		}
		if err := writeTrackTSV(f, groups[key]); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func trackFileName(eventType string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(eventType, "_"), "_")
	if name == "" {
		name = "EVENTS"
	}
	return name + ".tsv"
}

// uniqueFileName appends _2, _3, ... to name until it is not in used.
func uniqueFileName(name string, used map[string]bool) string {
	base := strings.TrimSuffix(name, ".tsv")
	out := name
	for i := 2; used[out]; i++ {
		out = base + "_" + strconv.Itoa(i) + ".tsv"
	}
	used[out] = true
	return out
}

func writeTrackTSV(w io.Writer, events []ClinicalEvent) error {
	keySet := map[string]struct{}{}
	for _, e := range events {
		for _, a := range e.Attributes {
			keySet[a.Key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	header := append([]string{"PATIENT_ID", "START_DATE", "STOP_DATE", "EVENT_TYPE"}, keys...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range events {
		stop := ""
		if e.EndDay != nil {
			stop = strconv.Itoa(*e.EndDay)
		}
		record := []string{e.PatientID, strconv.Itoa(e.StartDay), stop, e.EventType}
		for _, k := range keys {
			v, _ := e.Attr(k)
			record = append(record, v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
